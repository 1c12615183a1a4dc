package control

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/hudong/internal/domain"
)

// DefaultIdleTTL is how long a device may stay silent before it is forgotten.
const DefaultIdleTTL = 2 * time.Hour

type registryEntry struct {
	participant *Participant
	lastSeen    time.Time
}

// Registry keeps one Participant per device identity.
type Registry struct {
	store   Committer
	ttl     time.Duration
	ignored atomic.Int64
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry returns an empty registry. ttl <= 0 uses DefaultIdleTTL.
func NewRegistry(store Committer, ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the participant for deviceID, creating it on first use.
func (r *Registry) Get(deviceID string) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[deviceID]
	if !ok {
		e = &registryEntry{participant: NewParticipant(r.store, &r.ignored, r.logger.With("device_id", deviceID))}
		r.entries[deviceID] = e
	}
	e.lastSeen = r.now()
	return e.participant
}

// Current returns the session as the registry's store sees it.
func (r *Registry) Current() domain.SessionState { return r.store.Current() }

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Ignored returns the number of submissions the aggregator could not place.
func (r *Registry) Ignored() int64 { return r.ignored.Load() }

// IgnoredCounter is the counter shared by the registry's participants, for
// controllers created elsewhere that should report into the same total.
func (r *Registry) IgnoredCounter() *atomic.Int64 { return &r.ignored }

// Sweep forgets devices idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Participant sweeper started", "interval", interval, "ttl", r.ttl)

		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Info("Participant sweeper removed idle devices", "count", n, "remaining", r.Len())
				}
			case <-ctx.Done():
				r.logger.Info("Participant sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
