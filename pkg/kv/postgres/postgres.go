// Package postgres is a kv.Store backed by a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/dost/pkg/kv"
)

// Schema is the DDL for the dost_kv table. [Open] applies it; run
// [Store.Migrate] when constructing the store with [New].
const Schema = `
CREATE TABLE IF NOT EXISTS dost_kv (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [kv.Store] on PostgreSQL.
type Store struct {
	db    DB
	close func()
}

var _ kv.Store = (*Store)(nil)

// New wraps an existing connection or pool. Close does not close db.
func New(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Open connects a pool to dsn, pings it and applies [Schema]. Close releases
// the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("kv/postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv/postgres: ping: %w", err)
	}
	s := &Store{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("kv/postgres: migrate: %w", err)
	}
	return nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, kv.ErrEmptyKey
	}
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM dost_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv/postgres: get %q: %w", key, err)
	}
	return value, nil
}

// Set implements kv.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO dost_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("kv/postgres: set %q: %w", key, err)
	}
	return nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	s.close()
	return nil
}
