package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

func TestClassifyDegradedOnPartialTimeframeLoss(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil)

	metrics := map[string]domain.ProviderMetric{
		"twelveData": {QualityScore: 90},
		"finnhub":    {QualityScore: 88},
		"polygon":    {QualityScore: 30},
	}
	in := FleetInput{
		Now:                 time.Now(),
		ProviderMetrics:     metrics,
		BreakerOpenProviders: nil,
		BlockedTimeframes:   []domain.Timeframe{domain.M15, domain.H1},
		TotalTimeframes:     6,
	}

	sample := c.Classify(in)
	require.Equal(t, domain.StateDegraded, sample.State)
	require.InDelta(t, 0.333, float64(len(in.BlockedTimeframes))/float64(in.TotalTimeframes), 0.01)
	require.Len(t, c.History(), 1)
}

func TestSLOWarnBadge(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil)
	now := time.Now()

	// 197 operational samples + 3 critical (quality 20) => 98.5% uptime,
	// below the 99% target but not below the 98.5% breach line (target minus
	// the 0.5 warn margin), which exercises the warn badge.
	for i := 0; i < 197; i++ {
		c.Classify(FleetInput{Now: now, ProviderMetrics: map[string]domain.ProviderMetric{"p": {QualityScore: 95}}, TotalTimeframes: 1})
	}
	for i := 0; i < 3; i++ {
		c.Classify(FleetInput{Now: now, ProviderMetrics: map[string]domain.ProviderMetric{"p": {QualityScore: 20}}, TotalTimeframes: 1})
	}

	status := c.SLO(now)
	require.Equal(t, "warn", status.Badge)
}
