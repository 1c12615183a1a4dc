// Package session keeps one context's view of the shared session document in
// step with every other context through the storage slot and a broadcaster.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/store"
	"github.com/google/uuid"
)

// Store is one execution context's handle on the session. It is safe for
// concurrent use; commits from one Store apply in call order.
//
// The Store remembers the slot version its state came from. A broadcast is
// applied only when it carries a newer version, so stale or echoed documents
// are dropped however their bytes compare.
type Store struct {
	id     string
	slot   store.Slot
	key    string
	bus    Broadcaster
	def    domain.SessionState
	logger *slog.Logger

	commitMu sync.Mutex

	mu      sync.RWMutex
	state   domain.SessionState
	version int64

	subsMu  sync.RWMutex
	subs    map[int]func(domain.SessionState)
	nextSub int

	unsubscribe func()
}

// New creates a context bound to slot and bus. def is adopted when the slot
// is empty or unreadable. An empty key uses store.DefaultKey.
func New(slot store.Slot, key string, bus Broadcaster, def domain.SessionState, logger *slog.Logger) *Store {
	if key == "" {
		key = store.DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Store{
		id:     id,
		slot:   slot,
		key:    key,
		bus:    bus,
		def:    def.Clone(),
		state:  def.Clone(),
		logger: logger.With("context_id", id),
		subs:   make(map[int]func(domain.SessionState)),
	}
	if bus != nil {
		s.unsubscribe = bus.Subscribe(s.receive)
	}
	return s
}

// ID identifies this context in broadcasts.
func (s *Store) ID() string { return s.id }

// Key is the slot key the session lives under.
func (s *Store) Key() string { return s.key }

// Initialize loads the persisted session. An empty slot adopts the default
// and persists it. A document that cannot be decoded adopts the default
// without persisting and returns a *domain.DeserializationError, which the
// caller should log and carry on.
func (s *Store) Initialize(ctx context.Context) (domain.SessionState, error) {
	doc, version, err := s.slot.Load(ctx, s.key)
	switch {
	case errors.Is(err, store.ErrEmpty):
		def := s.def.Clone()
		if commitErr := s.Commit(ctx, def); commitErr != nil {
			return def, commitErr
		}
		s.logger.Info("Session slot empty, seeded default", "key", s.key, "slides", len(def.Slides))
		return def, nil

	case err != nil:
		s.setState(s.def.Clone())
		return s.Current(), fmt.Errorf("load session: %w", err)
	}

	state, err := domain.Decode(doc)
	if err != nil {
		s.mu.Lock()
		s.state = s.def.Clone()
		s.version = version
		s.mu.Unlock()
		return s.Current(), err
	}

	s.mu.Lock()
	s.state = state
	s.version = version
	s.mu.Unlock()
	return state.Clone(), nil
}

// Current returns a copy of the last known state.
func (s *Store) Current() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Commit replaces the whole document: in memory, then in the slot, then on
// the bus. A document that fails domain.Validate is rejected untouched; a
// valid one replaces the in-memory state even when persisting fails.
func (s *Store) Commit(ctx context.Context, next domain.SessionState) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.commitLocked(ctx, next)
}

// Update commits fn's result computed from the current state. Updates and
// commits through one Store do not interleave. When fn reports no change
// nothing is written.
func (s *Store) Update(ctx context.Context, fn func(domain.SessionState) (domain.SessionState, bool)) (bool, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	next, changed := fn(s.Current())
	if !changed {
		return false, nil
	}
	return true, s.commitLocked(ctx, next)
}

func (s *Store) commitLocked(ctx context.Context, next domain.SessionState) error {
	if err := domain.Validate(next); err != nil {
		return err
	}
	doc, err := domain.Encode(next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.setState(next.Clone())

	version, err := s.slot.Save(ctx, s.key, doc)
	if err != nil {
		s.logger.Error("Failed to persist session", "key", s.key, "error", err)
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	if version > s.version {
		s.version = version
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(Envelope{Origin: s.id, Key: s.key, Doc: doc, Version: version})
	}
	return nil
}

// OnExternalUpdate registers fn for commits made by other contexts. fn runs
// asynchronously and never sees this context's own commits.
func (s *Store) OnExternalUpdate(fn func(domain.SessionState)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Close detaches the context from the bus.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Store) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// receive waits out any commit in progress, so the version it compares
// against already includes this context's own writes.
func (s *Store) receive(env Envelope) {
	if env.Key != s.key || env.Origin == s.id {
		return
	}

	s.commitMu.Lock()
	s.mu.Lock()
	if env.Version <= s.version {
		s.mu.Unlock()
		s.commitMu.Unlock()
		return
	}
	state, err := domain.Decode(env.Doc)
	if err != nil {
		s.mu.Unlock()
		s.commitMu.Unlock()
		s.logger.Warn("Ignoring undecodable session update", "origin", env.Origin, "version", env.Version, "error", err)
		return
	}
	s.state = state
	s.version = env.Version
	s.mu.Unlock()
	s.commitMu.Unlock()

	s.subsMu.RLock()
	fns := make([]func(domain.SessionState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range fns {
		fn(state.Clone())
	}
}
