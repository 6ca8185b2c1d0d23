// Package featurestore implements the retention-bounded per-pair/timeframe
// feature snapshot store (C3).
package featurestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// FeatureValue is any scalar value a feature vector can carry.
type FeatureValue interface{}

// Sample is one recorded feature vector for a (pair, timeframe) key.
type Sample struct {
	Ts       int64
	Features map[string]FeatureValue
	Hash     string
	Price    float64
	Score    float64
	Direction string
}

// Persister is the narrow write-path the store uses for best-effort
// persistence (implemented by internal/persistence).
type Persister interface {
	RecordFeatureSnapshot(pair, timeframe string, sample Sample) bool
}

// Config controls retention: at most MaxPerKey samples, each no older than
// TTL, oldest-first eviction.
type Config struct {
	MaxPerKey int
	TTL       time.Duration
}

func DefaultConfig() Config {
	return Config{MaxPerKey: 500, TTL: 24 * time.Hour}
}

type key struct {
	pair domain.Pair
	tf   domain.Timeframe
}

// Store is the exclusive owner of all feature vectors; external readers
// always receive copy-on-return snapshots.
type Store struct {
	mu        sync.Mutex
	cfg       Config
	data      map[key][]Sample
	persister Persister
}

func NewStore(cfg Config, persister Persister) *Store {
	return &Store{cfg: cfg, data: make(map[key][]Sample), persister: persister}
}

// RecordFeatures appends a new sample for (pair, timeframe), keeping the
// series ordered by timestamp ascending and enforcing retention. Persistence
// is fire-and-forget: failures never block the caller.
func (s *Store) RecordFeatures(pair domain.Pair, tf domain.Timeframe, features map[string]FeatureValue, ts int64) Sample {
	hash := hashFeatures(features)
	sample := Sample{Ts: ts, Features: features, Hash: hash}

	k := key{pair: pair, tf: tf}
	s.mu.Lock()
	series := append(s.data[k], sample)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Ts < series[j].Ts })
	series = s.applyRetention(series, time.Now())
	s.data[k] = series
	s.mu.Unlock()

	if s.persister != nil {
		go s.persister.RecordFeatureSnapshot(pair.Symbol, string(tf), sample)
	}
	return sample
}

func (s *Store) applyRetention(series []Sample, now time.Time) []Sample {
	cutoff := now.Add(-s.cfg.TTL).UnixMilli()
	i := 0
	for ; i < len(series); i++ {
		if series[i].Ts >= cutoff {
			break
		}
	}
	series = series[i:]
	if len(series) > s.cfg.MaxPerKey {
		series = series[len(series)-s.cfg.MaxPerKey:]
	}
	return series
}

// GetLatest returns the most recent sample for a key, or false if empty.
func (s *Store) GetLatest(pair domain.Pair, tf domain.Timeframe) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.data[key{pair: pair, tf: tf}]
	if len(series) == 0 {
		return Sample{}, false
	}
	return series[len(series)-1], true
}

// GetRange returns samples since sinceTs, most recent `limit` entries.
func (s *Store) GetRange(pair domain.Pair, tf domain.Timeframe, sinceTs int64, limit int) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.data[key{pair: pair, tf: tf}]
	var out []Sample
	for _, smp := range series {
		if smp.Ts >= sinceTs {
			out = append(out, smp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return copySamples(out)
}

// GetSnapshot returns every timeframe's latest sample for a pair.
func (s *Store) GetSnapshot(pair domain.Pair) map[domain.Timeframe]Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Timeframe]Sample)
	for k, series := range s.data {
		if k.pair != pair || len(series) == 0 {
			continue
		}
		out[k.tf] = series[len(series)-1]
	}
	return out
}

// GetStats returns the size of up to `limit` keys, for diagnostics.
func (s *Store) GetStats(limit int) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	count := 0
	for k, series := range s.data {
		if limit > 0 && count >= limit {
			break
		}
		out[k.pair.Symbol+"|"+string(k.tf)] = len(series)
		count++
	}
	return out
}

// SnapshotSummary reports total keys and total retained samples.
func (s *Store) SnapshotSummary() (keys int, samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys = len(s.data)
	for _, series := range s.data {
		samples += len(series)
	}
	return
}

// PurgeExpired eagerly evicts TTL-expired samples across all keys; called by
// the coordinator at the start of each signal generation.
func (s *Store) PurgeExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, series := range s.data {
		s.data[k] = s.applyRetention(series, now)
	}
}

func copySamples(in []Sample) []Sample {
	out := make([]Sample, len(in))
	copy(out, in)
	return out
}

// hashFeatures computes a stable SHA-256 hash over the sorted-key JSON
// serialization of a feature map.
func hashFeatures(features map[string]FeatureValue) string {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		K string       `json:"k"`
		V FeatureValue `json:"v"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].K = k
		ordered[i].V = features[k]
	}

	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
