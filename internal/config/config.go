// Package config loads the environment-driven runtime configuration
// described in the platform's external interface contract.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the fully parsed runtime configuration. Every field corresponds
// to one of the recognized environment keys.
type Config struct {
	Environment string // NODE_ENV: "development" | "production"
	Port        int

	RequireRealtimeData bool
	AllowSyntheticData  bool
	TradingScope        string // "signals" | "execution"
	EAOnlyMode          bool

	DB DBConfig

	EnableWebsockets          bool
	EnableRiskReports         bool
	EnablePerformanceDigests  bool
	EnableBrokerRouting       bool
	EnableBrokerOANDA         bool
	EnableBrokerMT5           bool
	EnableBrokerIBKR          bool
	EnablePrefetchScheduler   bool
	AutoTradingAutostart      bool

	LiveBacktestMinTrades        int
	LiveBacktestMinWinRate       float64
	LiveBacktestMinProfitFactor  float64
	LiveBacktestMaxDrawdownPct   float64
	LiveBacktestMinExpectancyPct float64

	QuoteMaxAgeMs int64
}

// DBConfig is the persistence adapter's connection configuration.
type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSL      bool
	MinConns int
	MaxConns int
}

// Load parses the process environment into a Config. Defaults depend on
// NODE_ENV: in production every feature-enabling flag defaults off, while
// REQUIRE_REALTIME_DATA and DB_SSL default on; in development synthetic
// data, websockets and the prefetch scheduler default on.
func Load() Config {
	env := getEnv("NODE_ENV", "development")
	dev := env != "production"

	cfg := Config{
		Environment:          env,
		Port:                 getEnvInt("PORT", 8080),
		RequireRealtimeData:  getEnvBool("REQUIRE_REALTIME_DATA", !dev),
		AllowSyntheticData:   getEnvBool("ALLOW_SYNTHETIC_DATA", dev),
		TradingScope:         getEnv("TRADING_SCOPE", "signals"),
		EAOnlyMode:           getEnvBool("EA_ONLY_MODE", false),

		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "fxengine"),
			User:     getEnv("DB_USER", "fxengine"),
			Password: getEnv("DB_PASSWORD", ""),
			SSL:      getEnvBool("DB_SSL", !dev),
			MinConns: getEnvInt("DB_POOL_MIN", 2),
			MaxConns: getEnvInt("DB_POOL_MAX", 10),
		},

		EnableWebsockets:         getEnvBool("ENABLE_WEBSOCKETS", dev),
		EnableRiskReports:        getEnvBool("ENABLE_RISK_REPORTS", false),
		EnablePerformanceDigests: getEnvBool("ENABLE_PERFORMANCE_DIGESTS", false),
		EnableBrokerRouting:      getEnvBool("ENABLE_BROKER_ROUTING", false),
		EnableBrokerOANDA:        getEnvBool("ENABLE_BROKER_OANDA", false),
		EnableBrokerMT5:          getEnvBool("ENABLE_BROKER_MT5", false),
		EnableBrokerIBKR:         getEnvBool("ENABLE_BROKER_IBKR", false),
		EnablePrefetchScheduler:  getEnvBool("ENABLE_PREFETCH_SCHEDULER", dev),
		AutoTradingAutostart:     getEnvBool("AUTO_TRADING_AUTOSTART", false),

		LiveBacktestMinTrades:        getEnvInt("LIVE_BACKTEST_MIN_TRADES", 20),
		LiveBacktestMinWinRate:       getEnvFloat("LIVE_BACKTEST_MIN_WIN_RATE", 0.62),
		LiveBacktestMinProfitFactor:  getEnvFloat("LIVE_BACKTEST_MIN_PROFIT_FACTOR", 1.1),
		LiveBacktestMaxDrawdownPct:   getEnvFloat("LIVE_BACKTEST_MAX_DRAWDOWN_PCT", 18.0),
		LiveBacktestMinExpectancyPct: getEnvFloat("LIVE_BACKTEST_MIN_EXPECTANCY_PCT", 0.2),

		QuoteMaxAgeMs: int64(getEnvInt("QUOTE_MAX_AGE_MS", quoteMaxAgeDefault(dev))),
	}

	return cfg
}

func quoteMaxAgeDefault(dev bool) int {
	if dev {
		return 10 * 60 * 1000
	}
	return 60 * 1000
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// DSN builds a libpq connection string from the DB config.
func (c DBConfig) DSN() string {
	sslmode := "disable"
	if c.SSL {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, sslmode)
}
