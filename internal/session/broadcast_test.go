package session

import (
	"sync"
	"testing"
)

func TestLocalBroadcasterPreservesOrder(t *testing.T) {
	t.Parallel()

	b := NewLocalBroadcaster(100, nil)
	var (
		mu  sync.Mutex
		got []string
	)
	unsub := b.Subscribe(func(env Envelope) {
		mu.Lock()
		got = append(got, string(env.Doc))
		mu.Unlock()
	})

	want := []string{"1", "2", "3", "4", "5"}
	for _, d := range want {
		b.Publish(Envelope{Key: "k", Doc: []byte(d)})
	}
	waitFor(t, "all deliveries", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	})
	unsub()

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", got, want)
		}
	}
}

func TestLocalBroadcasterDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := NewLocalBroadcaster(1, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	unsub := b.Subscribe(func(Envelope) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	b.Publish(Envelope{Key: "k", Doc: []byte("a")})
	<-started
	b.Publish(Envelope{Key: "k", Doc: []byte("b")})
	b.Publish(Envelope{Key: "k", Doc: []byte("c")})

	if b.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", b.Dropped())
	}
	close(release)
	unsub()
}

func TestLocalBroadcasterUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewLocalBroadcaster(0, nil)
	unsub := b.Subscribe(func(Envelope) {})
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", b.Subscribers())
	}
	unsub()
	unsub()
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers = %d, want 0", b.Subscribers())
	}
	b.Publish(Envelope{Key: "k", Doc: []byte("x")})
}

func TestWroteVersion(t *testing.T) {
	t.Parallel()

	b := NewLocalBroadcaster(0, nil)
	for v := int64(1); v <= recentDepth+1; v++ {
		b.Publish(Envelope{Origin: "ctx", Key: "k", Version: v})
	}
	b.Publish(Envelope{Key: "k", Version: 100})

	if b.WroteVersion("k", 1) {
		t.Error("oldest version should have aged out")
	}
	if !b.WroteVersion("k", recentDepth+1) {
		t.Error("latest version not remembered")
	}
	if b.WroteVersion("k", 100) {
		t.Error("relayed envelope counted as a local write")
	}
	if b.WroteVersion("other", 2) {
		t.Error("version reported under the wrong key")
	}
}
