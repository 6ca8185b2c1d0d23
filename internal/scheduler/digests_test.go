package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/alerts"
)

type fakeRiskProvider struct{ data RiskReportData }

func (f fakeRiskProvider) DailyRiskReportData(now time.Time) RiskReportData { return f.data }

type fakePerfProvider struct{ data PerformanceReportData }

func (f fakePerfProvider) PerformanceDigestData(now time.Time) PerformanceReportData { return f.data }

func TestDailyRiskReportJobPublishes(t *testing.T) {
	bus := alerts.NewBus(zerolog.Nop(), alerts.DefaultConfig())
	var captured []alerts.Publication
	bus.Subscribe("capture", "", func(p alerts.Publication) { captured = append(captured, p) })

	job := NewDailyRiskReportJob(21, fakeRiskProvider{data: RiskReportData{AccountBalance: 10000, DailyRiskUsedPct: 2.0}}, bus)
	require.NoError(t, job.Run(context.Background()))

	require.Eventually(t, func() bool { return len(captured) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "risk.daily_report", captured[0].Topic)
}

func TestPerformanceDigestJobWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	bus := alerts.NewBus(zerolog.Nop(), alerts.DefaultConfig())
	job := NewPerformanceDigestJob(22, fakePerfProvider{data: PerformanceReportData{WindowDays: 30, TotalTrades: 12, WinRate: 58.3}}, bus)

	require.NoError(t, job.Run(context.Background()))

	entries, err := os.ReadDir(ReportsDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
