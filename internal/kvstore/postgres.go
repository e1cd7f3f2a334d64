package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// DefaultTable is the table blobs are stored in.
const DefaultTable = "kv_blobs"

// Postgres stores blobs in a two-column key/value table.
type Postgres struct {
	pool  *pgxpool.Pool
	table string // quoted identifier
}

// NewPostgresPool creates a connection pool and verifies the connection.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgres wraps pool and ensures the table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}
	p := &Postgres{pool: pool, table: pq.QuoteIdentifier(table)}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.table)
	if _, err := pool.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return p, nil
}

// Get returns the value stored under key.
func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table)

	var value string
	err := p.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select kv: %w", err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (p *Postgres) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, p.table)

	if _, err := p.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
