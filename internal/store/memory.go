package store

import (
	"context"
	"sync"
)

// MemorySlot keeps documents in process memory. Watch reports every save,
// including the caller's own.
type MemorySlot struct {
	mu       sync.RWMutex
	docs     map[string]memoryDoc
	watchers map[int]memoryWatch
	nextID   int
}

type memoryDoc struct {
	data    []byte
	version int64
}

type memoryWatch struct {
	key string
	ch  chan memoryDoc
}

// NewMemory returns an empty slot.
func NewMemory() *MemorySlot {
	return &MemorySlot{
		docs:     make(map[string]memoryDoc),
		watchers: make(map[int]memoryWatch),
	}
}

// Load returns a copy of the stored document.
func (s *MemorySlot) Load(_ context.Context, key string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, 0, ErrEmpty
	}
	return append([]byte(nil), doc.data...), doc.version, nil
}

// Save stores a copy of doc under the next version and wakes watchers of key.
func (s *MemorySlot) Save(_ context.Context, key string, doc []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := memoryDoc{data: append([]byte(nil), doc...), version: s.docs[key].version + 1}
	s.docs[key] = next
	for _, w := range s.watchers {
		if w.key != key {
			continue
		}
		select {
		case w.ch <- memoryDoc{data: append([]byte(nil), doc...), version: next.version}:
		default:
		}
	}
	return next.version, nil
}

// Ping always succeeds.
func (s *MemorySlot) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemorySlot) Close() error { return nil }

// Watch delivers saved documents until ctx is done. A watcher that falls
// behind misses intermediate saves.
func (s *MemorySlot) Watch(ctx context.Context, key string, fn func(doc []byte, version int64)) error {
	ch := make(chan memoryDoc, 16)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = memoryWatch{key: key, ch: ch}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case doc := <-ch:
			fn(doc.data, doc.version)
		}
	}
}
