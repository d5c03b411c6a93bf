package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS clip_results (
    campaign_id TEXT NOT NULL,
    clip_id     TEXT NOT NULL,
    result_url  TEXT NOT NULL,
    saved_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (campaign_id, clip_id)
);
CREATE TABLE IF NOT EXISTS outstanding_jobs (
    campaign_id TEXT PRIMARY KEY,
    jobs        JSONB NOT NULL,
    version     BIGINT NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE outstanding_jobs ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
`

const upsertClipResult = `
INSERT INTO clip_results (campaign_id, clip_id, result_url, saved_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (campaign_id, clip_id)
DO UPDATE SET result_url = EXCLUDED.result_url, saved_at = NOW();
`

const upsertOutstandingJobs = `
INSERT INTO outstanding_jobs (campaign_id, jobs, version, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (campaign_id)
DO UPDATE SET jobs = EXCLUDED.jobs, version = EXCLUDED.version, updated_at = NOW()
WHERE outstanding_jobs.version < EXCLUDED.version;
`

// execer is the subset of pgxpool.Pool used by PostgresSaver.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSaver implements Saver on PostgreSQL with idempotent upserts.
type PostgresSaver struct {
	db execer
}

// NewPool initializes a pgx connection pool for the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresSaver creates a saver backed by the pool.
func NewPostgresSaver(pool *pgxpool.Pool) *PostgresSaver {
	return &PostgresSaver{db: pool}
}

// EnsureSchema creates the result tables if they do not exist.
func (s *PostgresSaver) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("persistence: ensure schema: %w", err)
	}
	return nil
}

// SaveClipResult upserts the result URL of a clip.
func (s *PostgresSaver) SaveClipResult(ctx context.Context, campaignID, clipID, resultURL string) error {
	if campaignID == "" {
		return ErrCampaignIDRequired
	}
	if _, err := s.db.Exec(ctx, upsertClipResult, campaignID, clipID, resultURL); err != nil {
		return fmt.Errorf("persistence: save clip result %s/%s: %w", campaignID, clipID, err)
	}
	return nil
}

// SaveOutstandingJobs replaces the stored job set of a campaign unless a newer
// version is already stored.
func (s *PostgresSaver) SaveOutstandingJobs(ctx context.Context, campaignID string, version int64, jobs map[string]string) error {
	if campaignID == "" {
		return ErrCampaignIDRequired
	}
	if jobs == nil {
		jobs = map[string]string{}
	}
	payload, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("persistence: marshal jobs: %w", err)
	}
	if _, err := s.db.Exec(ctx, upsertOutstandingJobs, campaignID, payload, version); err != nil {
		return fmt.Errorf("persistence: save outstanding jobs %s: %w", campaignID, err)
	}
	return nil
}

// Compile-time check that PostgresSaver implements Saver.
var _ Saver = (*PostgresSaver)(nil)
