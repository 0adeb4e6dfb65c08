package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"moverscan/config"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend keeps each record as one row. The upsert is a single
// statement, so a record is replaced atomically.
type PostgresBackend struct {
	db    pgQuerier
	pool  *pgxpool.Pool
	table string
}

func NewPostgresBackend(ctx context.Context, cfg config.PostgresConfig) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	b := newPostgresBackend(pool, cfg.Table)
	b.pool = pool
	if err := b.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func newPostgresBackend(db pgQuerier, table string) *PostgresBackend {
	return &PostgresBackend{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

func (b *PostgresBackend) ensureTable(ctx context.Context) error {
	_, err := b.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name       TEXT PRIMARY KEY,
		body       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, b.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", b.table, err)
	}
	return nil
}

func (b *PostgresBackend) Put(ctx context.Context, name string, data []byte) error {
	cleaned, err := cleanName(name)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (name, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`, b.table),
		cleaned, data)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", cleaned, err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, name string) ([]byte, error) {
	cleaned, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	var body []byte
	err = b.db.QueryRow(ctx, fmt.Sprintf(`SELECT body FROM %s WHERE name = $1`, b.table), cleaned).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", cleaned, err)
	}
	return body, nil
}

func (b *PostgresBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}
