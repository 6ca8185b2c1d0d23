package providers

import (
	"sync"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// metricRing is the per-provider rolling health record. It is guarded by its
// own mutex so concurrent outcome recordings serialize without taking a
// fetcher-wide lock, matching spec.md's "per-provider critical section"
// resource policy.
type metricRing struct {
	mu sync.Mutex

	provider       string
	success        int64
	failed         int64
	rateLimited    int64
	latencyMean    float64 // Welford running mean of latency in ms
	latencyCount   int64
	lastSuccessAt  time.Time
	lastFailureAt  time.Time
	backoffUntilMs int64
	backoffSeconds int
}

func newMetricRing(provider string) *metricRing {
	return &metricRing{provider: provider}
}

// recordSuccess folds a successful call's latency into the Welford mean and
// clears any standing backoff.
func (m *metricRing) recordSuccess(latencyMs float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.success++
	m.latencyCount++
	m.latencyMean += (latencyMs - m.latencyMean) / float64(m.latencyCount)
	m.lastSuccessAt = now
}

// recordFailure folds a failed call into the counters. If backoffSecs > 0 the
// provider is placed into backoff until now+backoffSecs.
func (m *metricRing) recordFailure(now time.Time, rateLimited bool, backoffSecs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	if rateLimited {
		m.rateLimited++
	}
	m.lastFailureAt = now
	if backoffSecs > 0 {
		m.backoffSeconds = backoffSecs
		m.backoffUntilMs = now.UnixMilli() + int64(backoffSecs)*1000
	}
}

// inBackoff reports whether the provider is still serving a backoff window.
func (m *metricRing) inBackoff(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.UnixMilli() < m.backoffUntilMs
}

// snapshot computes the derived ProviderMetric view: success rate, a
// quality score blending success rate with inverse normalized latency, and
// the normalized [0,1] form the availability classifier consumes.
func (m *metricRing) snapshot(breakerState domain.BreakerState) domain.ProviderMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.success + m.failed
	successRate := 100.0
	if total > 0 {
		successRate = 100.0 * float64(m.success) / float64(total)
	}

	// Inverse-latency term: a 0ms response scores 1.0, anything at or beyond
	// 2000ms scores 0. Blended 70/30 with success rate, the teacher's
	// weighting for its own provider quality score.
	latencyTerm := 1.0 - (m.latencyMean / 2000.0)
	if latencyTerm < 0 {
		latencyTerm = 0
	}
	if latencyTerm > 1 {
		latencyTerm = 1
	}
	quality := 0.7*successRate + 0.3*latencyTerm*100.0
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}

	return domain.ProviderMetric{
		Provider:          m.provider,
		Success:           m.success,
		Failed:            m.failed,
		RateLimited:       m.rateLimited,
		AvgLatencyMs:      m.latencyMean,
		SuccessRatePct:    successRate,
		QualityScore:      quality,
		NormalizedQuality: quality / 100.0,
		LastSuccessAt:     m.lastSuccessAt,
		LastFailureAt:     m.lastFailureAt,
		CircuitState:      breakerState,
		BackoffSeconds:    m.backoffSeconds,
		BackoffUntilMs:    m.backoffUntilMs,
	}
}
