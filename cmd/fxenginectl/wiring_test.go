package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/featurestore"
	"github.com/fxrunner/engine/internal/persistence"
	"github.com/fxrunner/engine/internal/providers"
)

type fakeProvider struct {
	name string
	bars []domain.Bar
	quote *domain.Quote
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return true }
func (f *fakeProvider) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error) {
	return f.bars, nil
}
func (f *fakeProvider) FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	return f.quote, nil
}

func newFetcherWithFake(p *fakeProvider) *providers.Fetcher {
	f := providers.NewFetcher(providers.FetcherConfig{AllowSynthetic: true, DefaultRateRPS: 1000, DefaultBurst: 1000})
	f.Register(p)
	return f
}

func TestFetcherBarSourceDelegatesToFetcher(t *testing.T) {
	pair, err := domain.NewPair("EURUSD")
	require.NoError(t, err)
	tf := domain.M15
	bars := []domain.Bar{{TimestampMs: time.Now().UnixMilli(), Open: 1.1, High: 1.11, Low: 1.09, Close: 1.1, Volume: 10, Source: "fake"}}
	fetcher := newFetcherWithFake(&fakeProvider{name: "fake", bars: bars})

	src := fetcherBarSource{fetcher: fetcher, purpose: "test"}
	got, err := src.FetchBars(context.Background(), pair, tf, 1)

	require.NoError(t, err)
	require.Len(t, got, 1)
}

type fakeStore struct {
	recordedSnapshot *persistence.FeatureSnapshotRecord
}

func (s *fakeStore) RecordFeatureSnapshot(ctx context.Context, rec persistence.FeatureSnapshotRecord) bool {
	s.recordedSnapshot = &rec
	return true
}
func (s *fakeStore) RecordProviderMetric(ctx context.Context, rec persistence.ProviderMetricRecord) bool {
	return true
}
func (s *fakeStore) RecordProviderAvailabilitySnapshot(ctx context.Context, rec persistence.ProviderAvailabilityRecord) bool {
	return true
}
func (s *fakeStore) RecordDataQualityMetric(ctx context.Context, rec persistence.DataQualityMetricRecord) bool {
	return true
}
func (s *fakeStore) RecordNewsItems(ctx context.Context, items []persistence.NewsItemRecord) bool {
	return true
}
func (s *fakeStore) GetRecentNews(ctx context.Context, limit int) ([]persistence.NewsItemRecord, error) {
	return nil, nil
}
func (s *fakeStore) GetProviderAvailabilityHistory(ctx context.Context, provider string, since time.Time) ([]persistence.ProviderAvailabilityRecord, error) {
	return nil, nil
}
func (s *fakeStore) GetLatestProviderMetrics(ctx context.Context, provider string) (persistence.ProviderMetricRecord, error) {
	return persistence.ProviderMetricRecord{}, nil
}
func (s *fakeStore) Disabled() bool { return false }

func TestStoreFeaturePersisterForwardsSnapshotFields(t *testing.T) {
	store := &fakeStore{}
	persister := storeFeaturePersister{store: store}

	ok := persister.RecordFeatureSnapshot("EURUSD", "15m", featurestore.Sample{
		Ts: time.Now().UnixMilli(), Hash: "abc", Price: 1.1, Score: 0.8, Direction: "buy",
	})

	require.True(t, ok)
	require.NotNil(t, store.recordedSnapshot)
	require.Equal(t, "EURUSD", store.recordedSnapshot.Pair)
	require.Equal(t, "abc", store.recordedSnapshot.FeatureHash)
}
