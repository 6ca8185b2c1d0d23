package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/risk"
)

func TestRiskSnapshotAdapterReflectsEngineState(t *testing.T) {
	engine := risk.NewEngine(50000, risk.DefaultConfig())
	adapter := riskSnapshotAdapter{a: &app{riskEngine: engine}}

	data := adapter.DailyRiskReportData(time.Now())

	require.Equal(t, 50000.0, data.AccountBalance)
	require.False(t, data.KillSwitchEngaged)
}

func TestRiskSnapshotAdapterReportsEngagedKillSwitch(t *testing.T) {
	engine := risk.NewEngine(50000, risk.DefaultConfig())
	engine.EngageKillSwitch("daily_loss_limit_hit")
	adapter := riskSnapshotAdapter{a: &app{riskEngine: engine}}

	data := adapter.DailyRiskReportData(time.Now())

	require.True(t, data.KillSwitchEngaged)
	require.Equal(t, "daily_loss_limit_hit", data.KillSwitchReason)
}
