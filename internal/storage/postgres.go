// Package storage persists wallet custody records. A postgres-backed
// store is used in production; an in-memory store backs tests and
// local development without a database.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the postgres connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the wallet table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			account_id  TEXT PRIMARY KEY,
			address     TEXT NOT NULL,
			ciphertext  TEXT NOT NULL,
			salt        TEXT NOT NULL,
			iv          TEXT NOT NULL,
			auth_tag    TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create wallets table: %w", err)
	}
	return nil
}
