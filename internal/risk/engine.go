// Package risk implements the risk engine and trade manager (C9): position
// sizing, a chain of pre-trade risk gates evaluated in priority order, a
// daily risk accumulator, and a kill switch.
package risk

import (
	"sort"
	"sync"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// Gate is one pre-trade risk control; gates are evaluated in ascending
// Priority order (lower runs first) and the first failing gate blocks the
// trade, matching the chain-of-responsibility pattern the rest of this
// codebase uses for validity checks.
type Gate interface {
	Name() string
	Priority() int
	Evaluate(ctx Context, state State) (bool, string)
}

// Context carries the proposed trade's shape into each gate.
type Context struct {
	Pair           domain.Pair
	Direction      domain.Direction
	StopLossPips   float64
	Now            time.Time
}

// State is the engine's current risk posture, read-only to gates.
type State struct {
	AccountBalance    float64
	DailyRiskUsedPct  float64
	DailyRiskLimitPct float64
	CurrencyExposure  map[string]float64
	ExposureLimitPct  map[string]float64
	CorrelationLoad   float64
	CorrelationLimit  float64
	VaRPct            float64
	VaRLimitPct       float64
	KillSwitchEngaged bool
	KillSwitchReason  string
}

// --- gates ---

// KillSwitchGate blocks everything when the engine-wide kill switch is
// engaged; always runs first.
type KillSwitchGate struct{}

func (g KillSwitchGate) Name() string     { return "kill_switch" }
func (g KillSwitchGate) Priority() int     { return 0 }
func (g KillSwitchGate) Evaluate(ctx Context, s State) (bool, string) {
	if s.KillSwitchEngaged {
		return false, "kill switch engaged: " + s.KillSwitchReason
	}
	return true, ""
}

// DailyRiskGate blocks new risk once the daily accumulator reaches its
// limit.
type DailyRiskGate struct{}

func (g DailyRiskGate) Name() string { return "daily_risk_limit" }
func (g DailyRiskGate) Priority() int { return 1 }
func (g DailyRiskGate) Evaluate(ctx Context, s State) (bool, string) {
	if s.DailyRiskUsedPct >= s.DailyRiskLimitPct {
		return false, "daily risk limit reached"
	}
	return true, ""
}

// ExposureGate blocks new risk on a currency already at its per-currency
// exposure cap.
type ExposureGate struct{}

func (g ExposureGate) Name() string { return "currency_exposure" }
func (g ExposureGate) Priority() int { return 2 }
func (g ExposureGate) Evaluate(ctx Context, s State) (bool, string) {
	limit, ok := s.ExposureLimitPct[ctx.Pair.Base]
	if ok && s.CurrencyExposure[ctx.Pair.Base] >= limit {
		return false, "currency exposure limit reached for " + ctx.Pair.Base
	}
	return true, ""
}

// CorrelationGate blocks new risk when the correlated-cluster exposure load
// is already at its configured ceiling.
type CorrelationGate struct{}

func (g CorrelationGate) Name() string { return "correlation_cluster" }
func (g CorrelationGate) Priority() int { return 3 }
func (g CorrelationGate) Evaluate(ctx Context, s State) (bool, string) {
	if s.CorrelationLimit > 0 && s.CorrelationLoad >= s.CorrelationLimit {
		return false, "correlation cluster load exceeds limit"
	}
	return true, ""
}

// VaRGate blocks new risk when the rolling VaR estimate breaches its
// configured confidence threshold.
type VaRGate struct{}

func (g VaRGate) Name() string { return "var_guard" }
func (g VaRGate) Priority() int { return 4 }
func (g VaRGate) Evaluate(ctx Context, s State) (bool, string) {
	if s.VaRLimitPct > 0 && s.VaRPct >= s.VaRLimitPct {
		return false, "VaR breach"
	}
	return true, ""
}

// DefaultGates returns the chain in the order the engine evaluates pre-trade
// checks.
func DefaultGates() []Gate {
	return []Gate{KillSwitchGate{}, DailyRiskGate{}, ExposureGate{}, CorrelationGate{}, VaRGate{}}
}

// Engine owns account state, the open-position set, and the gate chain.
type Engine struct {
	mu sync.Mutex

	balance           float64
	accountRiskPct    float64
	dailyRiskUsedPct  float64
	dailyRiskLimitPct float64
	dailyResetAt      time.Time

	currencyExposure  map[string]float64
	exposureLimitPct  map[string]float64
	correlationLoad   float64
	correlationLimit  float64
	varPct            float64
	varLimitPct       float64

	killSwitch       bool
	killSwitchReason string

	gates []Gate
}

// Config seeds the engine's limits.
type Config struct {
	AccountRiskPct    float64
	DailyRiskLimitPct float64
	ExposureLimitPct  map[string]float64
	CorrelationLimit  float64
	VaRLimitPct       float64
}

func DefaultConfig() Config {
	return Config{
		AccountRiskPct:    1.0,
		DailyRiskLimitPct: 5.0,
		ExposureLimitPct:  map[string]float64{},
		CorrelationLimit:  3.0,
		VaRLimitPct:       5.0,
	}
}

func NewEngine(balance float64, cfg Config) *Engine {
	sorted := DefaultGates()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Engine{
		balance:           balance,
		accountRiskPct:    cfg.AccountRiskPct,
		dailyRiskLimitPct: cfg.DailyRiskLimitPct,
		currencyExposure:  make(map[string]float64),
		exposureLimitPct:  cfg.ExposureLimitPct,
		correlationLimit:  cfg.CorrelationLimit,
		varLimitPct:       cfg.VaRLimitPct,
		dailyResetAt:      nextUTCMidnight(time.Now()),
		gates:             sorted,
	}
}

// PositionSize computes accountBalance*accountRiskPct / (stopLossPips *
// pipValue).
func (e *Engine) PositionSize(pair domain.Pair, stopLossPips float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stopLossPips <= 0 {
		return 0
	}
	riskAmount := e.balance * (e.accountRiskPct / 100.0)
	pipValue := pair.PipSize()
	return riskAmount / (stopLossPips * pipValue)
}

// EvaluateRiskManagement runs the gate chain and returns the resulting
// decision, resetting the daily accumulator first if UTC midnight passed.
func (e *Engine) EvaluateRiskManagement(pair domain.Pair, direction domain.Direction, stopLossPips float64, now time.Time) domain.RiskManagement {
	e.mu.Lock()
	e.maybeResetDaily(now)
	state := e.snapshot()
	e.mu.Unlock()

	ctx := Context{Pair: pair, Direction: direction, StopLossPips: stopLossPips, Now: now}
	var blockers []string
	for _, gate := range e.gates {
		ok, reason := gate.Evaluate(ctx, state)
		if !ok {
			blockers = append(blockers, reason)
		}
	}

	size := e.PositionSize(pair, stopLossPips)
	riskAmount := size * stopLossPips * pair.PipSize()

	return domain.RiskManagement{
		PositionSize:   size,
		RiskAmount:     riskAmount,
		AccountRiskPct: e.accountRiskPct,
		CanTrade:       len(blockers) == 0,
		Blockers:       blockers,
	}
}

// RecordRiskUsed accumulates the daily risk-used percentage after a trade
// opens.
func (e *Engine) RecordRiskUsed(riskAmount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.balance <= 0 {
		return
	}
	e.dailyRiskUsedPct += riskAmount / e.balance * 100
}

// RecordExposure adjusts the per-currency exposure ledger by delta pct.
func (e *Engine) RecordExposure(currency string, deltaPct float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currencyExposure[currency] += deltaPct
}

// SetCorrelationLoad updates the correlation-cluster load, recomputed
// offline by the correlation tracker.
func (e *Engine) SetCorrelationLoad(load float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.correlationLoad = load
}

// SetVaR updates the rolling VaR estimate.
func (e *Engine) SetVaR(varPct float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.varPct = varPct
}

// EngageKillSwitch sets the mutex-guarded kill-switch flag and reason. Once
// engaged, KillSwitchGate blocks every EvaluateRiskManagement call
// (CanTrade=false); orders and modifications sent to the broker router are
// gated by the router's own kill switch.
func (e *Engine) EngageKillSwitch(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = true
	e.killSwitchReason = reason
}

// DisengageKillSwitch clears the kill switch.
func (e *Engine) DisengageKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = false
	e.killSwitchReason = ""
}

// KillSwitchEngaged reports the kill switch's current state.
func (e *Engine) KillSwitchEngaged() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch, e.killSwitchReason
}

// Snapshot exposes the engine's current account/limit state for reporting
// callers (the daily risk digest) that need it outside the gate chain.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) maybeResetDaily(now time.Time) {
	if now.Before(e.dailyResetAt) {
		return
	}
	e.dailyRiskUsedPct = 0
	e.dailyResetAt = nextUTCMidnight(now)
}

func (e *Engine) snapshot() State {
	exposure := make(map[string]float64, len(e.currencyExposure))
	for k, v := range e.currencyExposure {
		exposure[k] = v
	}
	return State{
		AccountBalance:    e.balance,
		DailyRiskUsedPct:  e.dailyRiskUsedPct,
		DailyRiskLimitPct: e.dailyRiskLimitPct,
		CurrencyExposure:  exposure,
		ExposureLimitPct:  e.exposureLimitPct,
		CorrelationLoad:   e.correlationLoad,
		CorrelationLimit:  e.correlationLimit,
		VaRPct:            e.varPct,
		VaRLimitPct:       e.varLimitPct,
		KillSwitchEngaged: e.killSwitch,
		KillSwitchReason:  e.killSwitchReason,
	}
}

func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
