package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"backoffice/pkg/platform/sentinel"
)

// SQLiteStore persists values in a single-file database. It is the default
// backend for the CLI, where no server-side store is available.
type SQLiteStore struct {
	db       *sql.DB
	observer LatencyObserver
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema. Use ":memory:" for an in-process database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS auth_session_kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create auth_session_kv: %w", err)
	}
	return &SQLiteStore{db: db, observer: noopObserver{}}, nil
}

// WithLatency records operation latency.
func (s *SQLiteStore) WithLatency(o LatencyObserver) *SQLiteStore {
	if o != nil {
		s.observer = o
	}
	return s
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer s.observer.ObserveStoreLatency("sqlite", "load", time.Now())
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM auth_session_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session kv: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, value []byte) error {
	defer s.observer.ObserveStoreLatency("sqlite", "save", time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_session_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save session kv: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	defer s.observer.ObserveStoreLatency("sqlite", "delete", time.Now())
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_session_kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete session kv: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
