package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SelfDisablingStore wraps a Backend with the graceful-degradation rule:
// the first write error flips disabled permanently, and every call
// thereafter returns false/empty without touching the backend.
type SelfDisablingStore struct {
	backend  Backend
	log      zerolog.Logger
	mu       sync.RWMutex
	disabled bool
}

func NewSelfDisablingStore(backend Backend, logger zerolog.Logger) *SelfDisablingStore {
	return &SelfDisablingStore{backend: backend, log: logger}
}

func (s *SelfDisablingStore) Disabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled
}

func (s *SelfDisablingStore) disable(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}
	s.disabled = true
	s.log.Error().Str("op", op).Err(err).Msg("persistence store disabled after first write error")
}

func (s *SelfDisablingStore) isDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled
}

func (s *SelfDisablingStore) RecordFeatureSnapshot(ctx context.Context, rec FeatureSnapshotRecord) bool {
	if s.isDisabled() {
		return false
	}
	if err := s.backend.RecordFeatureSnapshot(ctx, rec); err != nil {
		s.disable("record_feature_snapshot", err)
		return false
	}
	return true
}

func (s *SelfDisablingStore) RecordProviderMetric(ctx context.Context, rec ProviderMetricRecord) bool {
	if s.isDisabled() {
		return false
	}
	if err := s.backend.RecordProviderMetric(ctx, rec); err != nil {
		s.disable("record_provider_metric", err)
		return false
	}
	return true
}

func (s *SelfDisablingStore) RecordProviderAvailabilitySnapshot(ctx context.Context, rec ProviderAvailabilityRecord) bool {
	if s.isDisabled() {
		return false
	}
	if err := s.backend.RecordProviderAvailabilitySnapshot(ctx, rec); err != nil {
		s.disable("record_provider_availability_snapshot", err)
		return false
	}
	return true
}

func (s *SelfDisablingStore) RecordDataQualityMetric(ctx context.Context, rec DataQualityMetricRecord) bool {
	if s.isDisabled() {
		return false
	}
	if err := s.backend.RecordDataQualityMetric(ctx, rec); err != nil {
		s.disable("record_data_quality_metric", err)
		return false
	}
	return true
}

func (s *SelfDisablingStore) RecordNewsItems(ctx context.Context, items []NewsItemRecord) bool {
	if s.isDisabled() {
		return false
	}
	if err := s.backend.RecordNewsItems(ctx, items); err != nil {
		s.disable("record_news_items", err)
		return false
	}
	return true
}

// GetRecentNews, GetProviderAvailabilityHistory, and GetLatestProviderMetrics
// are reads: the spec's graceful-degradation rule covers writes, so these
// pass errors through rather than silently swallowing them.
func (s *SelfDisablingStore) GetRecentNews(ctx context.Context, limit int) ([]NewsItemRecord, error) {
	if s.isDisabled() {
		return nil, errDisabled
	}
	return s.backend.GetRecentNews(ctx, limit)
}

func (s *SelfDisablingStore) GetProviderAvailabilityHistory(ctx context.Context, provider string, since time.Time) ([]ProviderAvailabilityRecord, error) {
	if s.isDisabled() {
		return nil, errDisabled
	}
	return s.backend.GetProviderAvailabilityHistory(ctx, provider, since)
}

func (s *SelfDisablingStore) GetLatestProviderMetrics(ctx context.Context, provider string) (ProviderMetricRecord, error) {
	if s.isDisabled() {
		return ProviderMetricRecord{}, errDisabled
	}
	return s.backend.GetLatestProviderMetrics(ctx, provider)
}

var errDisabled = disabledError{}

type disabledError struct{}

func (disabledError) Error() string { return "persistence store disabled after prior write error" }
