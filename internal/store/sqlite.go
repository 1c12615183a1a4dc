package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/hudong/internal/shared"
	_ "modernc.org/sqlite"
)

const defaultPollInterval = 250 * time.Millisecond

// SQLiteSlot stores documents in a SQLite table. Every save bumps a version
// column, which Watch polls to notice writes from other processes.
type SQLiteSlot struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string, pollInterval time.Duration) (*SQLiteSlot, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	s := &SQLiteSlot{db: db, pollInterval: pollInterval}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSlot) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS storage_slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteSlot) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load returns the document stored under key.
func (s *SQLiteSlot) Load(ctx context.Context, key string) ([]byte, int64, error) {
	var (
		value   string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM storage_slots WHERE key = ?`, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrEmpty
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load slot %s: %w", key, err)
	}
	return []byte(value), version, nil
}

// Save overwrites the document stored under key, retrying while the
// database is locked by another writer.
func (s *SQLiteSlot) Save(ctx context.Context, key string, doc []byte) (int64, error) {
	query := `
	INSERT INTO storage_slots (key, value, version, updated_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		version = storage_slots.version + 1,
		updated_at = excluded.updated_at
	RETURNING version`

	var version int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetry, func() error {
		return s.db.QueryRowContext(ctx, query, key, string(doc), time.Now().UnixMilli()).Scan(&version)
	})
	if err != nil {
		return 0, fmt.Errorf("save slot %s: %w", key, err)
	}
	return version, nil
}

func (s *SQLiteSlot) version(ctx context.Context, key string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM storage_slots WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// Watch polls the version of key and reports each change.
func (s *SQLiteSlot) Watch(ctx context.Context, key string, fn func(doc []byte, version int64)) error {
	last, err := s.version(ctx, key)
	if err != nil {
		return fmt.Errorf("watch slot %s: %w", key, err)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v, err := s.version(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("Slot version poll failed", "key", key, "error", err)
				continue
			}
			if v <= last {
				continue
			}
			doc, version, err := s.Load(ctx, key)
			if err != nil {
				slog.Warn("Slot reload failed", "key", key, "error", err)
				continue
			}
			last = version
			fn(doc, version)
		}
	}
}

// Close closes the database connection.
func (s *SQLiteSlot) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
