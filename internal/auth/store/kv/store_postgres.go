package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backoffice/pkg/platform/sentinel"
)

// PostgresStore persists values in the auth_session_kv table.
type PostgresStore struct {
	db       *sql.DB
	clock    Clock
	observer LatencyObserver
}

// PostgresOption configures a PostgresStore instance.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPostgresLatency records operation latency.
func WithPostgresLatency(o LatencyObserver) PostgresOption {
	return func(s *PostgresStore) {
		if o != nil {
			s.observer = o
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now, observer: noopObserver{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureSchema creates the backing table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS auth_session_kv (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create auth_session_kv: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer s.observer.ObserveStoreLatency("postgres", "load", time.Now())
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM auth_session_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session kv: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, value []byte) error {
	defer s.observer.ObserveStoreLatency("postgres", "save", time.Now())
	query := `
		INSERT INTO auth_session_kv (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, s.clock()); err != nil {
		return fmt.Errorf("save session kv: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	defer s.observer.ObserveStoreLatency("postgres", "delete", time.Now())
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_session_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete session kv: %w", err)
	}
	return nil
}
