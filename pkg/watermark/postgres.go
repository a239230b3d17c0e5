package watermark

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"harvest-go/pkg/logger"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS watermarks (
	category   TEXT PRIMARY KEY,
	max_id     BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const raiseSQL = `
INSERT INTO watermarks (category, max_id)
VALUES ($1, $2)
ON CONFLICT (category) DO UPDATE
SET max_id = GREATEST(watermarks.max_id, EXCLUDED.max_id), updated_at = now()`

// PostgresConfig holds the connection settings for the watermark store
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// PostgresStore keeps watermarks in a single Postgres table. The raise
// is one upsert with GREATEST, so concurrent writers can never lower a
// stored value.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresStore connects, verifies the connection and bootstraps the
// schema
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	// Simple protocol keeps transaction-pooling bouncers happy
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach watermark database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure watermark schema: %w", err)
	}

	masked := logger.NewMaskedLogger()
	log := logger.GetLogger().Component("watermark")
	log.WithField("dsn", masked.MaskDSN(cfg.DSN)).Info("Watermark store ready")

	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Get(ctx context.Context, category string) (int64, error) {
	var value int64
	err := s.pool.QueryRow(ctx, `SELECT max_id FROM watermarks WHERE category = $1`, category).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read watermark for %s: %w", category, err)
	}
	return value, nil
}

func (s *PostgresStore) Raise(ctx context.Context, category string, value int64) error {
	if _, err := s.pool.Exec(ctx, raiseSQL, category, value); err != nil {
		return fmt.Errorf("failed to raise watermark for %s: %w", category, err)
	}
	return nil
}

// Ping reports whether the database is reachable, used by readiness
// probes
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
