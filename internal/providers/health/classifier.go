// Package health implements the provider health/availability classifier
// (C2): it aggregates per-provider quality into one of
// operational/degraded/critical/unknown each tick, keeps a bounded history
// ring, and derives an SLO uptime badge.
package health

import (
	"sync"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// Publisher is the narrow slice of the alert bus the classifier needs; kept
// as an interface here so this package never imports internal/alerts.
type Publisher interface {
	Publish(topic string, severity string, message string, context map[string]interface{})
}

// Config controls history retention and the SLO target.
type Config struct {
	HistorySize  int
	HistoryWindow time.Duration
	SLOTarget    float64 // default 99.0
	SLOWarnMargin float64 // default 0.5
}

func DefaultConfig() Config {
	return Config{HistorySize: 1000, HistoryWindow: 24 * time.Hour, SLOTarget: 99.0, SLOWarnMargin: 0.5}
}

// Classifier owns the ring buffer of availability samples and the last
// classification.
type Classifier struct {
	mu        sync.RWMutex
	cfg       Config
	history   []domain.AvailabilitySample
	publisher Publisher
	lastState domain.AvailabilityState
}

func NewClassifier(cfg Config, publisher Publisher) *Classifier {
	return &Classifier{cfg: cfg, publisher: publisher, lastState: domain.StateUnknown}
}

// FleetInput is the per-tick snapshot of the provider fleet the classifier
// consumes. It is a pure function of this input (invariant 7 in spec.md §8).
type FleetInput struct {
	Now                 time.Time
	ProviderMetrics     map[string]domain.ProviderMetric
	BreakerOpenProviders []string
	BlockedTimeframes   []domain.Timeframe
	TotalTimeframes     int
}

// Classify computes the classification for one tick, appends it to history,
// and publishes a transition event when the state changed.
func (c *Classifier) Classify(in FleetInput) domain.AvailabilitySample {
	total := len(in.ProviderMetrics)
	blockedProviders := len(in.BreakerOpenProviders)

	blockedProviderRatio := 0.0
	if total > 0 {
		blockedProviderRatio = float64(blockedProviders) / float64(total)
	}
	blockedTimeframeRatio := 0.0
	if in.TotalTimeframes > 0 {
		blockedTimeframeRatio = float64(len(in.BlockedTimeframes)) / float64(in.TotalTimeframes)
	}

	aggregateQuality := 0.0
	if total > 0 {
		sum := 0.0
		for _, m := range in.ProviderMetrics {
			sum += m.QualityScore
		}
		aggregateQuality = sum / float64(total)
	}

	breakersOpen := blockedProviders > 0
	state := domain.StateOperational
	reason := "healthy"
	severity := 0

	switch {
	case blockedProviderRatio >= 0.5 || blockedTimeframeRatio >= 0.5 || aggregateQuality < 40:
		state = domain.StateCritical
		reason = "critical: provider or timeframe coverage collapsed, or aggregate quality below 40"
		severity = 3
	case blockedProviderRatio >= 0.25 || (aggregateQuality >= 40 && aggregateQuality < 70) || breakersOpen:
		state = domain.StateDegraded
		reason = "degraded: partial provider loss, mid-range quality, or an open breaker"
		severity = 2
	case aggregateQuality >= 70 && !breakersOpen && len(in.BlockedTimeframes) == 0:
		state = domain.StateOperational
		reason = "operational"
		severity = 0
	default:
		state = domain.StateDegraded
		reason = "degraded: did not meet the operational bar"
		severity = 1
	}
	if total == 0 {
		state = domain.StateUnknown
		reason = "no samples yet"
		severity = 0
	}

	sample := domain.AvailabilitySample{
		CapturedAt:          in.Now,
		State:               state,
		Severity:            severity,
		Reason:              reason,
		AggregateQuality:    aggregateQuality,
		NormalizedQuality:   aggregateQuality / 100.0,
		UnavailableProviders: in.BreakerOpenProviders,
		BreakerProviders:    in.BreakerOpenProviders,
		BlockedTimeframes:   in.BlockedTimeframes,
	}

	c.mu.Lock()
	changed := c.lastState != state
	c.lastState = state
	c.history = append(c.history, sample)
	c.trimHistory(in.Now)
	c.mu.Unlock()

	if changed && c.publisher != nil {
		severityLabel := "info"
		if severity >= 3 {
			severityLabel = "error"
		} else if severity >= 1 {
			severityLabel = "warn"
		}
		c.publisher.Publish("provider_availability", severityLabel, reason, map[string]interface{}{
			"state": state, "aggregate_quality": aggregateQuality,
		})
	}

	return sample
}

func (c *Classifier) trimHistory(now time.Time) {
	if len(c.history) > c.cfg.HistorySize {
		c.history = c.history[len(c.history)-c.cfg.HistorySize:]
	}
	cutoff := now.Add(-c.cfg.HistoryWindow)
	i := 0
	for ; i < len(c.history); i++ {
		if c.history[i].CapturedAt.After(cutoff) {
			break
		}
	}
	c.history = c.history[i:]
}

// History returns a copy of the retained samples (bounded ring).
func (c *Classifier) History() []domain.AvailabilitySample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.AvailabilitySample, len(c.history))
	copy(out, c.history)
	return out
}

// SLOStatus summarizes uptime ratio against the configured target.
type SLOStatus struct {
	UptimeRatio           float64
	AverageAggregateQuality float64
	DegradedCount1h       int
	CriticalCount1h       int
	LastDegradedAt        time.Time
	LastCriticalAt        time.Time
	Badge                 string // "ok" | "warn" | "breach"
}

// SLO computes the derived uptime metrics over the retained history.
func (c *Classifier) SLO(now time.Time) SLOStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.history) == 0 {
		return SLOStatus{Badge: "ok"}
	}

	operational := 0
	qualitySum := 0.0
	var status SLOStatus
	hourAgo := now.Add(-time.Hour)
	for _, s := range c.history {
		qualitySum += s.AggregateQuality
		if s.State == domain.StateOperational {
			operational++
		}
		if s.State == domain.StateDegraded {
			if s.CapturedAt.After(hourAgo) {
				status.DegradedCount1h++
			}
			status.LastDegradedAt = s.CapturedAt
		}
		if s.State == domain.StateCritical {
			if s.CapturedAt.After(hourAgo) {
				status.CriticalCount1h++
			}
			status.LastCriticalAt = s.CapturedAt
		}
	}

	status.UptimeRatio = 100.0 * float64(operational) / float64(len(c.history))
	status.AverageAggregateQuality = qualitySum / float64(len(c.history))

	switch {
	case status.UptimeRatio < c.cfg.SLOTarget-c.cfg.SLOWarnMargin:
		status.Badge = "breach"
	case status.UptimeRatio < c.cfg.SLOTarget:
		status.Badge = "warn"
	default:
		status.Badge = "ok"
	}
	return status
}
