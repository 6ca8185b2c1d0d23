package providers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fxrunner/engine/internal/domain"
)

// ErrNoProvidersAvailable is the fatal-for-this-call error surfaced once
// every provider has been tried and failed (or was excluded up front).
var ErrNoProvidersAvailable = errors.New("no_providers_available")

// FetcherConfig configures backoff defaults and synthetic fallback.
type FetcherConfig struct {
	AllowSynthetic      bool
	RequireRealtimeData bool
	DefaultRateRPS      float64
	DefaultBurst        int
	BreakerConfig       gobreaker.Settings
}

// Fetcher fans out historical-bar and quote requests across registered
// providers, maintaining quota, latency, and health accounting per
// provider (C1).
type Fetcher struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string // preference list, filtered/sorted per request
	metrics   map[string]*metricRing
	limiters  map[string]*rate.Limiter
	breakers  map[string]*gobreaker.CircuitBreaker
	cfg       FetcherConfig
}

// NewFetcher constructs a Fetcher with no providers registered; call
// Register for each configured provider.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.DefaultRateRPS == 0 {
		cfg.DefaultRateRPS = 5
	}
	if cfg.DefaultBurst == 0 {
		cfg.DefaultBurst = 5
	}
	return &Fetcher{
		providers: make(map[string]Provider),
		metrics:   make(map[string]*metricRing),
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		cfg:       cfg,
	}
}

// Register adds a provider to the fetcher's preference list (append order is
// the initial preference before quality-based sorting).
func (f *Fetcher) Register(p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := p.Name()
	f.providers[name] = p
	f.order = append(f.order, name)
	f.metrics[name] = newMetricRing(name)
	f.limiters[name] = rate.NewLimiter(rate.Limit(f.cfg.DefaultRateRPS), f.cfg.DefaultBurst)

	settings := f.cfg.BreakerConfig
	settings.Name = name
	f.breakers[name] = gobreaker.NewCircuitBreaker(settings)
}

// orderedCandidates returns the providers eligible for this call: configured,
// not in backoff, not breaker-open, sorted by quality desc then latency asc.
func (f *Fetcher) orderedCandidates(opts FetchOptions) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	type cand struct {
		name    string
		quality float64
		latency float64
	}
	var cands []cand
	for _, name := range f.order {
		if opts.DisabledProviders != nil && opts.DisabledProviders[name] {
			continue
		}
		p := f.providers[name]
		if !p.IsConfigured() {
			continue
		}
		if f.metrics[name].inBackoff(now) {
			continue
		}
		if f.breakers[name].State() == gobreaker.StateOpen {
			continue
		}
		snap := f.metrics[name].snapshot(breakerStateOf(f.breakers[name].State()))
		cands = append(cands, cand{name: name, quality: snap.QualityScore, latency: snap.AvgLatencyMs})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].quality != cands[j].quality {
			return cands[i].quality > cands[j].quality
		}
		return cands[i].latency < cands[j].latency
	})

	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names
}

func breakerStateOf(s gobreaker.State) domain.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

// FetchBars fans the request out across providers in preference order,
// returning the first response that passes bar validation.
func (f *Fetcher) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, barCount int, opts FetchOptions) ([]domain.Bar, error) {
	if barCount < 1 || barCount > 5000 {
		return nil, fmt.Errorf("barCount %d out of range [1,5000]", barCount)
	}

	for _, name := range f.orderedCandidates(opts) {
		bars, err := f.tryProviderBars(ctx, name, pair, tf, barCount)
		if err == nil {
			return bars, nil
		}
	}

	if f.cfg.AllowSynthetic && !f.cfg.RequireRealtimeData {
		return syntheticBars(pair, tf, barCount, time.Now()), nil
	}
	return nil, ErrNoProvidersAvailable
}

func (f *Fetcher) tryProviderBars(ctx context.Context, name string, pair domain.Pair, tf domain.Timeframe, barCount int) ([]domain.Bar, error) {
	f.mu.RLock()
	p := f.providers[name]
	limiter := f.limiters[name]
	breaker := f.breakers[name]
	metric := f.metrics[name]
	f.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := breaker.Execute(func() (interface{}, error) {
		bars, err := p.FetchBars(ctx, pair, tf, barCount)
		if err != nil {
			return nil, err
		}
		if verr := domain.ValidateSeries(bars, tf); verr != nil {
			return nil, verr
		}
		return bars, nil
	})

	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		rateLimited, backoffSecs := classifyFailure(err)
		metric.recordFailure(time.Now(), rateLimited, backoffSecs)
		return nil, err
	}
	metric.recordSuccess(latencyMs, time.Now())
	return result.([]domain.Bar), nil
}

// FetchQuote mirrors FetchBars for a single two-sided quote; returns nil, nil
// when no provider has a quote and synthetic data is not requested for
// quotes (quotes are never synthesized, only bars).
func (f *Fetcher) FetchQuote(ctx context.Context, pair domain.Pair, opts FetchOptions) (*domain.Quote, error) {
	for _, name := range f.orderedCandidates(opts) {
		f.mu.RLock()
		p := f.providers[name]
		limiter := f.limiters[name]
		breaker := f.breakers[name]
		metric := f.metrics[name]
		f.mu.RUnlock()

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		result, err := breaker.Execute(func() (interface{}, error) {
			return p.FetchQuote(ctx, pair)
		})
		latencyMs := float64(time.Since(start).Milliseconds())
		if err != nil {
			rateLimited, backoffSecs := classifyFailure(err)
			metric.recordFailure(time.Now(), rateLimited, backoffSecs)
			continue
		}
		metric.recordSuccess(latencyMs, time.Now())
		if q, ok := result.(*domain.Quote); ok {
			return q, nil
		}
	}
	return nil, nil
}

// classifyFailure extracts retry-after semantics from a RetryAfter error,
// applying the spec's defaults (10 min for 429, 30 min for 403) when the
// upstream omitted the header.
func classifyFailure(err error) (rateLimited bool, backoffSecs int) {
	var ra *RetryAfter
	if errors.As(err, &ra) {
		if ra.RetryAfterSecs > 0 {
			return true, ra.RetryAfterSecs
		}
		switch ra.StatusCode {
		case 429:
			return true, 10 * 60
		case 403:
			return true, 30 * 60
		}
		return true, 10 * 60
	}
	return false, 0
}

// Metrics returns a snapshot of every registered provider's rolling metric.
func (f *Fetcher) Metrics() map[string]domain.ProviderMetric {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]domain.ProviderMetric, len(f.metrics))
	for name, m := range f.metrics {
		out[name] = m.snapshot(breakerStateOf(f.breakers[name].State()))
	}
	return out
}

// syntheticBars returns a deterministic pseudo-random walk seeded by
// (pair, timeframe, hour-of-day) so repeated calls within the same hour
// produce identical output, tagged source=synthetic.
func syntheticBars(pair domain.Pair, tf domain.Timeframe, count int, now time.Time) []domain.Bar {
	seed := int64(0)
	for _, c := range pair.Symbol + string(tf) {
		seed = seed*31 + int64(c)
	}
	seed += int64(now.Hour())
	rng := rand.New(rand.NewSource(seed))

	period := tf.PeriodSeconds() * 1000
	price := 1.0 + rng.Float64()*0.2
	bars := make([]domain.Bar, count)
	startTs := now.UnixMilli() - int64(count)*period
	for i := 0; i < count; i++ {
		delta := (rng.Float64() - 0.5) * 0.002
		open := price
		close := price + delta
		high := open
		if close > high {
			high = close
		}
		high += rng.Float64() * 0.0005
		low := open
		if close < low {
			low = close
		}
		low -= rng.Float64() * 0.0005

		bars[i] = domain.Bar{
			TimestampMs: startTs + int64(i)*period,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       close,
			Volume:      100 + rng.Float64()*900,
			Source:      "synthetic",
		}
		price = close
	}
	return bars
}
