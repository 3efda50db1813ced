package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// ErrNoDatabase is returned by NewPool when no DSN is configured.
var ErrNoDatabase = errors.New("database url is not configured")

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool parses dsn, configures pgxpool, verifies connectivity, and returns the pool.
func NewPool(ctx context.Context, dsn string, logger *logger.Logger) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, ErrNoDatabase
	}
	start := time.Now()

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}

	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute

	// keep sessions on UTC
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `SET TIME ZONE 'UTC'`)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	// ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	logger.Info(ctx, "db_connected", "Connected to PostgreSQL database", map[string]any{
		"host":        pcfg.ConnConfig.Host,
		"database":    pcfg.ConnConfig.Database,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS processed_orders (
	message_id     TEXT PRIMARY KEY,
	order_id       UUID NOT NULL,
	amount         NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	correlation_id TEXT,
	created_at     TIMESTAMPTZ,
	processed_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS processed_orders_order_id_idx ON processed_orders (order_id, processed_at DESC);
`

// EnsureSchema creates the tables the worker and API need. It is safe to run repeatedly.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
