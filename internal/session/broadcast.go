package session

import (
	"log/slog"
	"sync"
)

// DefaultQueueSize bounds each subscriber's pending envelopes.
const DefaultQueueSize = 64

// recentDepth is how many locally written versions are remembered per key.
const recentDepth = 16

// Envelope is one committed document on its way to other contexts. Origin is
// the committing store's ID; it is empty for changes picked up from the slot.
// Version is the slot version the document was saved as.
type Envelope struct {
	Origin  string
	Key     string
	Doc     []byte
	Version int64
}

// Broadcaster fans committed documents out to every subscribed context.
type Broadcaster interface {
	Publish(env Envelope)
	Subscribe(fn func(Envelope)) (unsubscribe func())
}

type subscriber struct {
	queue chan Envelope
	done  chan struct{}
}

// LocalBroadcaster is an in-process Broadcaster. Each subscriber gets its own
// goroutine and a bounded queue; when the queue is full the envelope is
// dropped for that subscriber only. Delivery to one subscriber keeps publish
// order.
type LocalBroadcaster struct {
	mu        sync.Mutex
	subs      map[int]*subscriber
	nextID    int
	queueSize int
	recent    map[string][]int64
	dropped   int64
	logger    *slog.Logger
}

// NewLocalBroadcaster returns an empty bus. queueSize <= 0 uses DefaultQueueSize.
func NewLocalBroadcaster(queueSize int, logger *slog.Logger) *LocalBroadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBroadcaster{
		subs:      make(map[int]*subscriber),
		queueSize: queueSize,
		recent:    make(map[string][]int64),
		logger:    logger,
	}
}

// Publish hands env to every subscriber without blocking.
func (b *LocalBroadcaster) Publish(env Envelope) {
	env.Doc = append([]byte(nil), env.Doc...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if env.Origin != "" {
		r := append(b.recent[env.Key], env.Version)
		if len(r) > recentDepth {
			r = r[len(r)-recentDepth:]
		}
		b.recent[env.Key] = r
	}

	for id, sub := range b.subs {
		select {
		case sub.queue <- env:
		default:
			b.dropped++
			b.logger.Warn("Broadcast queue full, dropping update",
				"subscriber", id,
				"origin", env.Origin,
				"key", env.Key)
		}
	}
}

// Subscribe registers fn. It is called on a dedicated goroutine; the returned
// function stops delivery and waits for an in-flight call to return.
func (b *LocalBroadcaster) Subscribe(fn func(Envelope)) func() {
	sub := &subscriber{
		queue: make(chan Envelope, b.queueSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for env := range sub.queue {
			fn(env)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(sub.queue)
			b.mu.Unlock()
			<-sub.done
		})
	}
}

// WroteVersion reports whether version is one of the last versions of key
// published by a store in this process. Relayed envelopes are not counted.
func (b *LocalBroadcaster) WroteVersion(key string, version int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.recent[key] {
		if v == version {
			return true
		}
	}
	return false
}

// Subscribers returns the number of live subscriptions.
func (b *LocalBroadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were lost to full queues.
func (b *LocalBroadcaster) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
