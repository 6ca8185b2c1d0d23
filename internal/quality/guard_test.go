package quality

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/net/circuit"
)

type fakeBars struct{ bars []domain.Bar }

func (f *fakeBars) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error) {
	return f.bars, nil
}

func cleanBars(n int, tf domain.Timeframe, now time.Time) []domain.Bar {
	period := tf.PeriodSeconds() * 1000
	start := now.UnixMilli() - int64(n)*period
	bars := make([]domain.Bar, n)
	price := 1.1
	for i := 0; i < n; i++ {
		bars[i] = domain.Bar{TimestampMs: start + int64(i)*period, Open: price, High: price + 0.0001, Low: price - 0.0001, Close: price, Volume: 10}
	}
	return bars
}

func newManager() *circuit.Manager {
	return circuit.NewManager(circuit.Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute, RequestTimeout: 5 * time.Second})
}

func TestAssessMarketDataHealthy(t *testing.T) {
	now := time.Now()
	bars := &fakeBars{bars: cleanBars(100, domain.M15, now)}
	g := NewGuard(bars, func(ctx context.Context, p domain.Pair) (float64, error) { return 1.0, nil }, DefaultConfig(), newManager())
	pair, _ := domain.NewPair("EURUSD")

	report := g.AssessMarketData(context.Background(), pair, now)
	require.Equal(t, StatusHealthy, report.Status)
	require.Equal(t, RecommendProceed, report.Recommendation)
	require.False(t, g.IsBreakerActive(pair))
}

func TestAssessMarketDataCriticalSpreadActivatesBreaker(t *testing.T) {
	now := time.Now()
	bars := &fakeBars{bars: cleanBars(100, domain.M15, now)}
	g := NewGuard(bars, func(ctx context.Context, p domain.Pair) (float64, error) { return 4.5, nil }, DefaultConfig(), newManager())
	pair, _ := domain.NewPair("EURUSD")

	report := g.AssessMarketData(context.Background(), pair, now)
	require.Equal(t, StatusCritical, report.Status)
	require.True(t, report.SpreadCritical)
	require.InDelta(t, 65, report.ConfidenceFloor, 0.001)
	require.True(t, g.IsBreakerActive(pair))
}

func TestAssessMarketDataCachedWithinTTL(t *testing.T) {
	now := time.Now()
	bars := &fakeBars{bars: cleanBars(100, domain.M15, now)}
	g := NewGuard(bars, nil, DefaultConfig(), newManager())
	pair, _ := domain.NewPair("EURUSD")

	first := g.AssessMarketData(context.Background(), pair, now)
	second := g.AssessMarketData(context.Background(), pair, now.Add(time.Minute))
	require.Equal(t, first.ComputedAt, second.ComputedAt)
}
