package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileDebounce = 30 * time.Millisecond

// FileSlot keeps each key in <dir>/<key>.json. Saves go through a temp file
// and rename so readers never see a partial document.
//
// The file holds {"version": N, "doc": ...}. N is the writer's clock in
// nanoseconds, bumped past the previous version when the clock lags. A file
// holding a bare document is read with its modification time as version.
type FileSlot struct {
	dir string
}

type fileEnvelope struct {
	Version int64           `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// NewFile creates dir if needed and returns a slot rooted there.
func NewFile(dir string) (*FileSlot, error) {
	if dir == "" {
		return nil, errors.New("file slot directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create slot directory: %w", err)
	}
	return &FileSlot{dir: dir}, nil
}

func (s *FileSlot) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads the document for key.
func (s *FileSlot) Load(_ context.Context, key string) ([]byte, int64, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, ErrEmpty
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read slot file: %w", err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Version > 0 && len(env.Doc) > 0 {
		return []byte(env.Doc), env.Version, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat slot file: %w", err)
	}
	return data, info.ModTime().UnixNano(), nil
}

// Save atomically replaces the document for key (temp file, fsync, rename).
// doc must be JSON.
func (s *FileSlot) Save(ctx context.Context, key string, doc []byte) (int64, error) {
	if !json.Valid(doc) {
		return 0, errors.New("file slot only stores JSON documents")
	}

	version := time.Now().UnixNano()
	if _, prev, err := s.Load(ctx, key); err == nil && prev >= version {
		version = prev + 1
	}
	data, err := json.Marshal(fileEnvelope{Version: version, Doc: doc})
	if err != nil {
		return 0, fmt.Errorf("encode slot file: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	return version, nil
}

// Ping checks the directory is still there.
func (s *FileSlot) Ping(context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("stat slot directory: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileSlot) Close() error { return nil }

// Watch reports changes to key's file using fsnotify on the slot directory.
// Bursts of events are collapsed and versions already reported are skipped.
func (s *FileSlot) Watch(ctx context.Context, key string, fn func(doc []byte, version int64)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			slog.Debug("Failed to close slot watcher", "error", closeErr)
		}
	}()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch slot directory: %w", err)
	}

	target := s.path(key)
	_, last, _ := s.Load(ctx, key)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(fileDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Slot watcher error", "key", key, "error", err)

		case <-timer.C:
			doc, version, err := s.Load(ctx, key)
			if err != nil {
				if !errors.Is(err, ErrEmpty) {
					slog.Warn("Slot reload failed", "key", key, "error", err)
				}
				continue
			}
			if version <= last {
				continue
			}
			last = version
			fn(doc, version)
		}
	}
}
