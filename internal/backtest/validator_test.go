package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

type fakeBarSource struct{ bars []domain.Bar }

func (f *fakeBarSource) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error) {
	return f.bars, nil
}

func trendingBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	price := 1.10
	for i := 0; i < n; i++ {
		price += 0.00015
		bars[i] = domain.Bar{TimestampMs: int64(i) * 900000, Open: price, High: price + 0.0006, Low: price - 0.0001, Close: price, Volume: 10}
	}
	return bars
}

func TestValidateSignalSkipsNeutral(t *testing.T) {
	v := NewValidator(&fakeBarSource{}, DefaultConfig())
	pair, _ := domain.NewPair("EURUSD")
	result := v.ValidateSignal(context.Background(), domain.Signal{Direction: domain.Neutral}, pair)
	require.Equal(t, OutcomeSkipped, result.Outcome)
}

func TestValidateSignalSkipsInsufficientBars(t *testing.T) {
	v := NewValidator(&fakeBarSource{bars: trendingBars(5)}, DefaultConfig())
	pair, _ := domain.NewPair("EURUSD")
	result := v.ValidateSignal(context.Background(), domain.Signal{Direction: domain.Buy}, pair)
	require.Equal(t, OutcomeSkipped, result.Outcome)
}

func TestValidateSignalReplaysTradesOnStrongUptrend(t *testing.T) {
	v := NewValidator(&fakeBarSource{bars: trendingBars(500)}, DefaultConfig())
	pair, _ := domain.NewPair("EURUSD")
	signal := domain.Signal{
		Direction: domain.Buy,
		Entry:     &domain.Entry{Price: 1.10, StopLoss: 1.0978, TakeProfit: 1.1040, RiskReward: 1.8},
		GeneratedAt: time.Now(),
	}
	result := v.ValidateSignal(context.Background(), signal, pair)
	require.Contains(t, []Outcome{OutcomePassed, OutcomeFailed}, result.Outcome)
	require.Greater(t, result.Metrics.TotalTrades, 0)
}
