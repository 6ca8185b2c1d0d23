package providers

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

type fakeProvider struct {
	name       string
	configured bool
	err        error
	bars       []domain.Bar
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}
func (f *fakeProvider) FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	return nil, nil
}

func validBars(n int, tf domain.Timeframe) []domain.Bar {
	period := tf.PeriodSeconds() * 1000
	start := time.Now().UnixMilli() - int64(n)*period
	bars := make([]domain.Bar, n)
	price := 1.1
	for i := 0; i < n; i++ {
		bars[i] = domain.Bar{TimestampMs: start + int64(i)*period, Open: price, High: price + 0.001, Low: price - 0.001, Close: price, Volume: 10, Source: "fake"}
	}
	return bars
}

func newTestFetcher() *Fetcher {
	return NewFetcher(FetcherConfig{
		AllowSynthetic:      true,
		RequireRealtimeData: false,
		DefaultRateRPS:      1000,
		DefaultBurst:        1000,
		BreakerConfig: gobreaker.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
		},
	})
}

func TestFetchBarsFailoverToSecondProvider(t *testing.T) {
	f := newTestFetcher()
	pair, _ := domain.NewPair("EURUSD")

	failing := &fakeProvider{name: "providerA", configured: true, err: &RetryAfter{Err: context.DeadlineExceeded, RetryAfterSecs: 30, StatusCode: 429}}
	working := &fakeProvider{name: "providerB", configured: true, bars: validBars(10, domain.M15)}
	f.Register(failing)
	f.Register(working)

	bars, err := f.FetchBars(context.Background(), pair, domain.M15, 10, FetchOptions{})
	require.NoError(t, err)
	require.Len(t, bars, 10)

	metrics := f.Metrics()
	require.EqualValues(t, 1, metrics["providerA"].Failed)
	require.EqualValues(t, 1, metrics["providerA"].RateLimited)
	require.InDelta(t, 30, metrics["providerA"].BackoffSeconds, 0.001)
	require.EqualValues(t, 1, metrics["providerB"].Success)
}

func TestFetchBarsSyntheticFallback(t *testing.T) {
	f := newTestFetcher()
	pair, _ := domain.NewPair("EURUSD")

	failing := &fakeProvider{name: "providerA", configured: true, err: context.DeadlineExceeded}
	f.Register(failing)

	bars, err := f.FetchBars(context.Background(), pair, domain.M15, 5, FetchOptions{})
	require.NoError(t, err)
	require.Len(t, bars, 5)
	require.Equal(t, "synthetic", bars[0].Source)
}

func TestFetchBarsNoProvidersFatal(t *testing.T) {
	f := newTestFetcher()
	f.cfg.AllowSynthetic = false
	pair, _ := domain.NewPair("EURUSD")

	failing := &fakeProvider{name: "providerA", configured: true, err: context.DeadlineExceeded}
	f.Register(failing)

	_, err := f.FetchBars(context.Background(), pair, domain.M15, 5, FetchOptions{})
	require.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestBarCountRangeValidated(t *testing.T) {
	f := newTestFetcher()
	pair, _ := domain.NewPair("EURUSD")
	_, err := f.FetchBars(context.Background(), pair, domain.M15, 0, FetchOptions{})
	require.Error(t, err)
	_, err = f.FetchBars(context.Background(), pair, domain.M15, 5001, FetchOptions{})
	require.Error(t, err)
}
