package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel carries the key of every saved slot.
const notifyChannel = "hudong_slot_changed"

// PostgresSlot stores documents in Postgres and uses LISTEN/NOTIFY so every
// process sharing the database hears about each save.
type PostgresSlot struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and creates the slot table.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresSlot, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres slot")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresSlot{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresSlot) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS hudong_storage_slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

// Ping verifies database connectivity.
func (s *PostgresSlot) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load returns the document stored under key.
func (s *PostgresSlot) Load(ctx context.Context, key string) ([]byte, int64, error) {
	var (
		value   string
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT value, version FROM hudong_storage_slots WHERE key = $1`, key).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrEmpty
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load slot %s: %w", key, err)
	}
	return []byte(value), version, nil
}

// Save overwrites the document and notifies listeners in the same
// transaction, so the notification is only sent once the write is visible.
func (s *PostgresSlot) Save(ctx context.Context, key string, doc []byte) (int64, error) {
	var version int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
		INSERT INTO hudong_storage_slots (key, value, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			version = hudong_storage_slots.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`, key, string(doc)).Scan(&version); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("save slot %s: %w", key, err)
	}
	return version, nil
}

// Watch listens on the notification channel with a dedicated connection.
// Notifications for versions already reported are skipped.
func (s *PostgresSlot) Watch(ctx context.Context, key string, fn func(doc []byte, version int64)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var last int64
	if _, v, err := s.Load(ctx, key); err == nil {
		last = v
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if n.Payload != key {
			continue
		}
		doc, version, err := s.Load(ctx, key)
		if err != nil {
			slog.Warn("Slot reload failed", "key", key, "error", err)
			continue
		}
		if version <= last {
			continue
		}
		last = version
		fn(doc, version)
	}
}

// Close closes the pool.
func (s *PostgresSlot) Close() error {
	s.pool.Close()
	return nil
}
