package featurestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

func TestRecordFeaturesRetentionByCount(t *testing.T) {
	s := NewStore(Config{MaxPerKey: 3, TTL: time.Hour}, nil)
	pair, _ := domain.NewPair("EURUSD")

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		s.RecordFeatures(pair, domain.M15, map[string]FeatureValue{"rsi": float64(i)}, base+int64(i))
	}

	series := s.GetRange(pair, domain.M15, 0, 0)
	require.Len(t, series, 3)
	require.EqualValues(t, 2, series[0].Features["rsi"])
	require.EqualValues(t, 4, series[2].Features["rsi"])
}

func TestRecordFeaturesHashIsStableAcrossKeyOrder(t *testing.T) {
	s := NewStore(DefaultConfig(), nil)
	pair, _ := domain.NewPair("GBPUSD")

	a := s.RecordFeatures(pair, domain.H1, map[string]FeatureValue{"rsi": 55.0, "atr": 0.002}, 1)
	b := s.RecordFeatures(pair, domain.H1, map[string]FeatureValue{"atr": 0.002, "rsi": 55.0}, 2)
	require.Equal(t, a.Hash, b.Hash)
}

func TestGetLatestEmptyKey(t *testing.T) {
	s := NewStore(DefaultConfig(), nil)
	pair, _ := domain.NewPair("USDJPY")
	_, ok := s.GetLatest(pair, domain.D1)
	require.False(t, ok)
}

type fakePersister struct{ calls int }

func (f *fakePersister) RecordFeatureSnapshot(pair, timeframe string, sample Sample) bool {
	f.calls++
	return true
}

func TestRecordFeaturesFiresPersistenceAsync(t *testing.T) {
	fp := &fakePersister{}
	s := NewStore(DefaultConfig(), fp)
	pair, _ := domain.NewPair("EURUSD")
	s.RecordFeatures(pair, domain.M5, map[string]FeatureValue{"x": 1.0}, 1)
	require.Eventually(t, func() bool { return fp.calls == 1 }, time.Second, 5*time.Millisecond)
}
