package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		RequestTimeout:   50 * time.Millisecond,
	}
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	b := NewBreaker(testConfig())
	require.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
		require.Error(t, err)
	}
	require.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, b.Call(context.Background(), func(ctx context.Context) error { return nil }), ErrOpen)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("x") })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Call(context.Background(), func(ctx context.Context) error { return nil }))
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Call(context.Background(), func(ctx context.Context) error { return nil }))
	require.Equal(t, StateClosed, b.State())
}

func TestManagerTrip(t *testing.T) {
	m := NewManager(testConfig())
	breaker := m.Get("EURUSD")
	require.Equal(t, StateClosed, breaker.State())

	breaker.Trip("spread:critical", 2*time.Minute)
	require.Equal(t, StateOpen, m.Get("EURUSD").State())
	require.Contains(t, m.OpenNames(), "EURUSD (spread:critical)")
}
