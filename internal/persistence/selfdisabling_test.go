package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	failNext bool
	calls    int
}

func (f *fakeBackend) RecordFeatureSnapshot(ctx context.Context, rec FeatureSnapshotRecord) error {
	f.calls++
	if f.failNext {
		return errors.New("write failed")
	}
	return nil
}
func (f *fakeBackend) RecordProviderMetric(ctx context.Context, rec ProviderMetricRecord) error { return nil }
func (f *fakeBackend) RecordProviderAvailabilitySnapshot(ctx context.Context, rec ProviderAvailabilityRecord) error {
	return nil
}
func (f *fakeBackend) RecordDataQualityMetric(ctx context.Context, rec DataQualityMetricRecord) error {
	return nil
}
func (f *fakeBackend) RecordNewsItems(ctx context.Context, items []NewsItemRecord) error { return nil }
func (f *fakeBackend) GetRecentNews(ctx context.Context, limit int) ([]NewsItemRecord, error) {
	return nil, nil
}
func (f *fakeBackend) GetProviderAvailabilityHistory(ctx context.Context, provider string, since time.Time) ([]ProviderAvailabilityRecord, error) {
	return nil, nil
}
func (f *fakeBackend) GetLatestProviderMetrics(ctx context.Context, provider string) (ProviderMetricRecord, error) {
	return ProviderMetricRecord{}, nil
}

func TestSelfDisablingStoreStaysEnabledOnSuccess(t *testing.T) {
	backend := &fakeBackend{}
	store := NewSelfDisablingStore(backend, zerolog.Nop())

	ok := store.RecordFeatureSnapshot(context.Background(), FeatureSnapshotRecord{})
	require.True(t, ok)
	require.False(t, store.Disabled())
}

func TestSelfDisablingStoreDisablesAfterFirstError(t *testing.T) {
	backend := &fakeBackend{failNext: true}
	store := NewSelfDisablingStore(backend, zerolog.Nop())

	ok := store.RecordFeatureSnapshot(context.Background(), FeatureSnapshotRecord{})
	require.False(t, ok)
	require.True(t, store.Disabled())

	backend.failNext = false
	callsBefore := backend.calls
	ok = store.RecordFeatureSnapshot(context.Background(), FeatureSnapshotRecord{})
	require.False(t, ok)
	require.Equal(t, callsBefore, backend.calls, "disabled store must not contact the backend again")
}

func TestSelfDisablingStoreReadsFailWhenDisabled(t *testing.T) {
	backend := &fakeBackend{failNext: true}
	store := NewSelfDisablingStore(backend, zerolog.Nop())
	store.RecordFeatureSnapshot(context.Background(), FeatureSnapshotRecord{})

	_, err := store.GetRecentNews(context.Background(), 10)
	require.Error(t, err)
}
