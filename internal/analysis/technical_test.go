package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

type fakeBarSource struct {
	bars map[domain.Timeframe][]domain.Bar
}

func (f *fakeBarSource) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error) {
	return f.bars[tf], nil
}

func risingBars(n int, start float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		price *= 1.002
		bars[i] = domain.Bar{TimestampMs: int64(i) * 900000, Open: price, High: price + 0.001, Low: price - 0.001, Close: price, Volume: 100 + float64(i)}
	}
	return bars
}

func TestTechnicalAnalyzeAggregatesTimeframeVotes(t *testing.T) {
	src := &fakeBarSource{bars: map[domain.Timeframe][]domain.Bar{
		domain.M15: risingBars(60, 1.1),
		domain.H1:  risingBars(60, 1.1),
	}}
	a := NewTechnicalAnalyzer(src, TimeframeWeights{domain.M15: 0.5, domain.H1: 0.5})
	pair, _ := domain.NewPair("EURUSD")

	result, err := a.Analyze(context.Background(), pair, time.Now())
	require.NoError(t, err)
	require.Equal(t, "BUY", result.Direction)
	require.Len(t, result.Votes, 2)
}

func TestTechnicalAnalyzeInsufficientBars(t *testing.T) {
	src := &fakeBarSource{bars: map[domain.Timeframe][]domain.Bar{domain.M15: risingBars(3, 1.1)}}
	a := NewTechnicalAnalyzer(src, TimeframeWeights{domain.M15: 1.0})
	pair, _ := domain.NewPair("EURUSD")

	_, err := a.Analyze(context.Background(), pair, time.Now())
	require.Error(t, err)
}
