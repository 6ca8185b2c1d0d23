// Package postgres implements internal/persistence.Backend against a
// PostgreSQL store via sqlx and lib/pq, using append-only event-like
// tables keyed by natural keys with deduplication on conflict.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fxrunner/engine/internal/persistence"
)

// Config mirrors the teacher's database connection configuration shape.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// Store implements persistence.Backend against a PostgreSQL connection.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

func Connect(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, timeout: cfg.QueryTimeout}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RecordFeatureSnapshot(ctx context.Context, rec persistence.FeatureSnapshotRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feature_snapshots (pair, timeframe, feature_hash, features, price, score, direction, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (feature_hash, captured_at) DO NOTHING`,
		rec.Pair, rec.Timeframe, rec.FeatureHash, features, rec.Price, rec.Score, rec.Direction, rec.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert feature snapshot: %w", err)
	}
	return nil
}

func (s *Store) RecordProviderMetric(ctx context.Context, rec persistence.ProviderMetricRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_metrics (provider, latency_ms, success, error_message, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.Provider, rec.LatencyMs, rec.Success, rec.ErrorMessage, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert provider metric: %w", err)
	}
	return nil
}

func (s *Store) RecordProviderAvailabilitySnapshot(ctx context.Context, rec persistence.ProviderAvailabilityRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_availability_snapshots (provider, state, reason, sampled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, sampled_at) DO NOTHING`,
		rec.Provider, rec.State, rec.Reason, rec.SampledAt)
	if err != nil {
		return fmt.Errorf("insert provider availability snapshot: %w", err)
	}
	return nil
}

func (s *Store) RecordDataQualityMetric(ctx context.Context, rec persistence.DataQualityMetricRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_quality_metrics (pair, status, recommendation, confidence_floor, computed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pair, computed_at) DO NOTHING`,
		rec.Pair, rec.Status, rec.Recommendation, rec.ConfidenceFloor, rec.ComputedAt)
	if err != nil {
		return fmt.Errorf("insert data quality metric: %w", err)
	}
	return nil
}

func (s *Store) RecordNewsItems(ctx context.Context, items []persistence.NewsItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin news items tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO news_items (headline, source, published_at, impact_level, sentiment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (headline, published_at) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare news items insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.Headline, item.Source, item.PublishedAt, item.ImpactLevel, item.Sentiment); err != nil {
			return fmt.Errorf("insert news item: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetRecentNews(ctx context.Context, limit int) ([]persistence.NewsItemRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `
		SELECT headline, source, published_at, impact_level, sentiment
		FROM news_items
		ORDER BY published_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent news: %w", err)
	}
	defer rows.Close()

	var out []persistence.NewsItemRecord
	for rows.Next() {
		var rec persistence.NewsItemRecord
		if err := rows.Scan(&rec.Headline, &rec.Source, &rec.PublishedAt, &rec.ImpactLevel, &rec.Sentiment); err != nil {
			return nil, fmt.Errorf("scan news item: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetProviderAvailabilityHistory(ctx context.Context, provider string, since time.Time) ([]persistence.ProviderAvailabilityRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `
		SELECT provider, state, reason, sampled_at
		FROM provider_availability_snapshots
		WHERE provider = $1 AND sampled_at >= $2
		ORDER BY sampled_at DESC`, provider, since)
	if err != nil {
		return nil, fmt.Errorf("query provider availability history: %w", err)
	}
	defer rows.Close()

	var out []persistence.ProviderAvailabilityRecord
	for rows.Next() {
		var rec persistence.ProviderAvailabilityRecord
		if err := rows.Scan(&rec.Provider, &rec.State, &rec.Reason, &rec.SampledAt); err != nil {
			return nil, fmt.Errorf("scan provider availability record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetLatestProviderMetrics(ctx context.Context, provider string) (persistence.ProviderMetricRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rec persistence.ProviderMetricRecord
	err := s.db.QueryRowxContext(ctx, `
		SELECT provider, latency_ms, success, error_message, recorded_at
		FROM provider_metrics
		WHERE provider = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, provider).Scan(&rec.Provider, &rec.LatencyMs, &rec.Success, &rec.ErrorMessage, &rec.RecordedAt)
	if err == sql.ErrNoRows {
		return persistence.ProviderMetricRecord{}, nil
	}
	if err != nil {
		return persistence.ProviderMetricRecord{}, fmt.Errorf("query latest provider metrics: %w", err)
	}
	return rec, nil
}
