package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

func TestPositionSizeScalesWithBalance(t *testing.T) {
	e := NewEngine(10000, DefaultConfig())
	pair, _ := domain.NewPair("EURUSD")
	size := e.PositionSize(pair, 22)
	require.Greater(t, size, 0.0)
}

func TestEvaluateRiskManagementBlockedByKillSwitch(t *testing.T) {
	e := NewEngine(10000, DefaultConfig())
	pair, _ := domain.NewPair("EURUSD")
	e.EngageKillSwitch("maintenance")

	rm := e.EvaluateRiskManagement(pair, domain.Buy, 22, time.Now())
	require.False(t, rm.CanTrade)
	require.Contains(t, rm.Blockers[0], "kill switch engaged")
}

func TestEvaluateRiskManagementBlockedByDailyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyRiskLimitPct = 1.0
	e := NewEngine(10000, cfg)
	pair, _ := domain.NewPair("EURUSD")
	e.RecordRiskUsed(150) // 1.5% of 10000

	rm := e.EvaluateRiskManagement(pair, domain.Buy, 22, time.Now())
	require.False(t, rm.CanTrade)
}

func TestEngageKillSwitchReportsEngagedWithReason(t *testing.T) {
	e := NewEngine(10000, DefaultConfig())
	e.EngageKillSwitch("maintenance")
	engaged, reason := e.KillSwitchEngaged()
	require.True(t, engaged)
	require.Equal(t, "maintenance", reason)
}

func TestHighCorrelationPairsDetectsStrongCorrelation(t *testing.T) {
	returns := ReturnSeries{
		"EURUSD": {0.01, 0.02, -0.01, 0.015, -0.005},
		"GBPUSD": {0.011, 0.019, -0.009, 0.016, -0.004},
		"USDJPY": {-0.01, 0.03, 0.02, -0.02, 0.01},
	}
	pairs := HighCorrelationPairs(returns, 0.9)
	require.NotEmpty(t, pairs)
}

func TestHistoricalVaRPositiveLossOnly(t *testing.T) {
	returns := []float64{-5, -3, -1, 0, 1, 2, 3}
	v := HistoricalVaR(returns, 0.95)
	require.GreaterOrEqual(t, v, 0.0)
}
