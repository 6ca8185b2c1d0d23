// Package providers implements the multi-provider market data fetcher (C1):
// quota tracking, rate-limit backoff, per-provider circuit breaking, health
// scoring, provider ordering, and synthetic fallback.
package providers

import (
	"context"

	"github.com/fxrunner/engine/internal/domain"
)

// Provider is the narrow capability set every market data source exposes.
// The fetcher only ever depends on this interface, never on a concrete
// provider type, the way the teacher's okx/coingecko adapters are consumed
// only through their exported methods.
type Provider interface {
	Name() string
	IsConfigured() bool
	FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, barCount int) ([]domain.Bar, error)
	FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error)
}

// FetchOptions carries the per-call knobs spec.md enumerates instead of a
// bag of positional/boolean parameters. The fetcher reads only
// DisabledProviders: Purpose is not attributed in provider metrics, and
// Timeout is not applied (each adapter's HTTP client has its own fixed
// timeout).
type FetchOptions struct {
	Purpose          string // free-form caller label, e.g. "quality-check"
	DisabledProviders map[string]bool
	Timeout          int64 // milliseconds
}

// RetryAfter is returned by an adapter when the upstream responded 429/403,
// carrying the Retry-After header in seconds (0 when the header was absent,
// in which case the fetcher applies its per-status default backoff).
type RetryAfter struct {
	Err            error
	RetryAfterSecs int
	StatusCode     int
}

func (e *RetryAfter) Error() string { return e.Err.Error() }
func (e *RetryAfter) Unwrap() error { return e.Err }
