// Package store provides the storage slot backends the session document is
// persisted in.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmpty is returned by Load when nothing has been saved under the key.
var ErrEmpty = errors.New("storage slot is empty")

// DefaultKey is the well-known slot the session document lives in.
const DefaultKey = "hudong_session_state"

// Slot persists whole documents under a key. Writes overwrite
// unconditionally. Every save gives the key a new version, greater than any
// version the slot reported before for that key.
type Slot interface {
	// Load returns the stored document and its version, or ErrEmpty.
	Load(ctx context.Context, key string) ([]byte, int64, error)

	// Save replaces the stored document and returns its new version.
	Save(ctx context.Context, key string, doc []byte) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Watcher is implemented by slots that can report writes made by other
// processes. Watch blocks, calling fn with the new document and its version
// after each change, until ctx is done. Versions only grow; a watcher that
// falls behind may skip intermediate ones.
type Watcher interface {
	Watch(ctx context.Context, key string, fn func(doc []byte, version int64)) error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver       string
	DBPath       string
	Dir          string
	DatabaseURL  string
	PollInterval time.Duration
}

// Open builds the slot named by opts.Driver.
func Open(ctx context.Context, opts Options) (Slot, error) {
	var (
		slot Slot
		err  error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		slot, err = openSQLite(opts)
	case DriverFile:
		slot, err = openFile(opts)
	case DriverPostgres:
		slot, err = openPostgres(ctx, opts)
	case DriverMemory:
		slot = NewMemory()
	default:
		err = fmt.Errorf("unknown slot driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func openSQLite(opts Options) (Slot, error) {
	s, err := NewSQLite(opts.DBPath, opts.PollInterval)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openFile(opts Options) (Slot, error) {
	s, err := NewFile(opts.Dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, opts Options) (Slot, error) {
	s, err := NewPostgres(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}
