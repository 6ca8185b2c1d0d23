// Package persistence defines the best-effort observability store contract
// (C12): feature snapshots, provider metrics/availability, data-quality
// metrics, and news. Every write returns a boolean success rather than an
// error so callers (C2, C3, C4, C6) can treat persistence as fire-and-forget.
package persistence

import (
	"context"
	"time"
)

// FeatureSnapshotRecord is one row of the feature_snapshots table.
type FeatureSnapshotRecord struct {
	Pair       string
	Timeframe  string
	FeatureHash string
	Features   map[string]interface{}
	Price      float64
	Score      float64
	Direction  string
	CapturedAt time.Time
}

// ProviderMetricRecord is one row of the provider_metrics table.
type ProviderMetricRecord struct {
	Provider     string
	LatencyMs    float64
	Success      bool
	ErrorMessage string
	RecordedAt   time.Time
}

// ProviderAvailabilityRecord is one row of provider_availability_snapshots.
type ProviderAvailabilityRecord struct {
	Provider  string
	State     string
	Reason    string
	SampledAt time.Time
}

// DataQualityMetricRecord is one row of data_quality_metrics.
type DataQualityMetricRecord struct {
	Pair           string
	Status         string
	Recommendation string
	ConfidenceFloor float64
	ComputedAt     time.Time
}

// NewsItemRecord is one row of news_items.
type NewsItemRecord struct {
	Headline    string
	Source      string
	PublishedAt time.Time
	ImpactLevel string
	Sentiment   float64
}

// Store is the C12 contract every client (C2, C3, C4, C6) depends on.
type Store interface {
	RecordFeatureSnapshot(ctx context.Context, rec FeatureSnapshotRecord) bool
	RecordProviderMetric(ctx context.Context, rec ProviderMetricRecord) bool
	RecordProviderAvailabilitySnapshot(ctx context.Context, rec ProviderAvailabilityRecord) bool
	RecordDataQualityMetric(ctx context.Context, rec DataQualityMetricRecord) bool
	RecordNewsItems(ctx context.Context, items []NewsItemRecord) bool
	GetRecentNews(ctx context.Context, limit int) ([]NewsItemRecord, error)
	GetProviderAvailabilityHistory(ctx context.Context, provider string, since time.Time) ([]ProviderAvailabilityRecord, error)
	GetLatestProviderMetrics(ctx context.Context, provider string) (ProviderMetricRecord, error)
	Disabled() bool
}

// Backend is the subset of Store a concrete driver (postgres, ...)
// implements; SelfDisablingStore wraps it with the graceful-degradation
// rule the spec requires.
type Backend interface {
	RecordFeatureSnapshot(ctx context.Context, rec FeatureSnapshotRecord) error
	RecordProviderMetric(ctx context.Context, rec ProviderMetricRecord) error
	RecordProviderAvailabilitySnapshot(ctx context.Context, rec ProviderAvailabilityRecord) error
	RecordDataQualityMetric(ctx context.Context, rec DataQualityMetricRecord) error
	RecordNewsItems(ctx context.Context, items []NewsItemRecord) error
	GetRecentNews(ctx context.Context, limit int) ([]NewsItemRecord, error)
	GetProviderAvailabilityHistory(ctx context.Context, provider string, since time.Time) ([]ProviderAvailabilityRecord, error)
	GetLatestProviderMetrics(ctx context.Context, provider string) (ProviderMetricRecord, error)
}
