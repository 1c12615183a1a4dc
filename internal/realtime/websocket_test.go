package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/deck"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/identity"
	"github.com/ashureev/hudong/internal/provider"
	"github.com/ashureev/hudong/internal/session"
	"github.com/ashureev/hudong/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	h := NewHandler(Config{
		Slot:     store.NewMemory(),
		Bus:      session.NewLocalBroadcaster(0, nil),
		Default:  deck.Default(),
		Provider: provider.New(provider.Canned{}, time.Second, nil),
		IsDev:    true,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, role Role) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?role=" + string(role)
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", role, err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func read(t *testing.T, ctx context.Context, c *websocket.Conn) outbound {
	t.Helper()
	var msg outbound
	if err := wsjson.Read(ctx, c, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func expect(t *testing.T, ctx context.Context, c *websocket.Conn, kind string) outbound {
	t.Helper()
	msg := read(t, ctx, c)
	if msg.Type != kind {
		t.Fatalf("got %q message (error=%q), want %q", msg.Type, msg.Error, kind)
	}
	return msg
}

func write(t *testing.T, ctx context.Context, c *websocket.Conn, v any) {
	t.Helper()
	if err := wsjson.Write(ctx, c, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPresenterAndParticipantStayInSync(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, h := newTestServer(t)

	presenter := dial(t, ctx, srv, RolePresenter)
	first := expect(t, ctx, presenter, "state")
	if first.Session == nil || first.Session.Code != "8816 2024" {
		t.Fatalf("initial state = %+v", first.Session)
	}

	participant := dial(t, ctx, srv, RoleParticipant)
	expect(t, ctx, participant, "state")

	if p, a := h.Connections().Count(RolePresenter), h.Connections().Count(RoleParticipant); p != 1 || a != 1 {
		t.Errorf("connections = %d presenters, %d participants", p, a)
	}

	write(t, ctx, presenter, map[string]string{"type": "advance", "direction": "next"})
	if got := expect(t, ctx, presenter, "state"); got.Session.CurrentSlideIndex != 1 {
		t.Errorf("presenter index = %d, want 1", got.Session.CurrentSlideIndex)
	}
	if got := expect(t, ctx, participant, "update"); got.Session.CurrentSlideIndex != 1 {
		t.Errorf("participant index = %d, want 1", got.Session.CurrentSlideIndex)
	}

	write(t, ctx, participant, map[string]string{"type": "respond", "slideId": "s2", "value": "Go"})
	expect(t, ctx, participant, "state")
	update := expect(t, ctx, presenter, "update")
	wc := update.Session.Slides[1].(*domain.WordCloudSlide)
	last := wc.Words[len(wc.Words)-1]
	if last.Text != "Go" || last.Count != 1 {
		t.Errorf("last word = %+v, want Go/1", last)
	}

	write(t, ctx, participant, map[string]string{"type": "respond", "slideId": "s2", "value": "Again"})
	if got := expect(t, ctx, participant, "error"); !strings.Contains(got.Error, "already responded") {
		t.Errorf("error = %q", got.Error)
	}
	expect(t, ctx, participant, "state")
}

func TestParticipantCannotNavigate(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := newTestServer(t)

	c := dial(t, ctx, srv, RoleParticipant)
	expect(t, ctx, c, "state")

	write(t, ctx, c, map[string]string{"type": "advance", "direction": "next"})
	if got := expect(t, ctx, c, "error"); got.Error != errForbidden.Error() {
		t.Errorf("error = %q", got.Error)
	}
	if got := expect(t, ctx, c, "state"); got.Session.CurrentSlideIndex != 0 {
		t.Errorf("participant moved the deck to %d", got.Session.CurrentSlideIndex)
	}

	write(t, ctx, c, map[string]string{"type": "ping"})
	expect(t, ctx, c, "pong")
}

func TestPresenterGeneratesSlide(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := newTestServer(t)

	c := dial(t, ctx, srv, RolePresenter)
	expect(t, ctx, c, "state")

	write(t, ctx, c, map[string]string{"type": "generate", "topic": "AI", "slideType": "QNA"})
	got := expect(t, ctx, c, "state")
	if len(got.Session.Slides) != 4 || got.Session.CurrentSlideIndex != 3 {
		t.Fatalf("after generate: %d slides, index %d", len(got.Session.Slides), got.Session.CurrentSlideIndex)
	}
	if got.Session.Slides[3].Type() != domain.SlideQnA {
		t.Errorf("generated type = %s", got.Session.Slides[3].Type())
	}

	write(t, ctx, c, map[string]string{"type": "generate", "topic": " ", "slideType": "QNA"})
	expect(t, ctx, c, "error")
	expect(t, ctx, c, "state")

	write(t, ctx, c, map[string]any{"type": "jump", "index": 0})
	if got := expect(t, ctx, c, "state"); got.Session.CurrentSlideIndex != 0 {
		t.Errorf("jump index = %d", got.Session.CurrentSlideIndex)
	}
}

func TestConcurrentAnswersFromManyDevicesAllCount(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slot := store.NewMemory()
	bus := session.NewLocalBroadcaster(0, nil)
	shared := session.New(slot, "", bus, deck.Default(), nil)
	t.Cleanup(shared.Close)
	if _, err := shared.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	registry := control.NewRegistry(shared, time.Hour, nil)

	h := NewHandler(Config{
		Slot:     slot,
		Bus:      bus,
		Default:  deck.Default(),
		Registry: registry,
		IsDev:    true,
	})
	srv := httptest.NewServer(identity.Middleware(true)(h))
	t.Cleanup(srv.Close)

	// Each dial carries no cookie, so each connection is a new device.
	const devices = 8
	conns := make([]*websocket.Conn, devices)
	for i := range conns {
		conns[i] = dial(t, ctx, srv, RoleParticipant)
		expect(t, ctx, conns[i], "state")
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			if err := wsjson.Write(ctx, c, map[string]string{"type": "respond", "slideId": "s1", "value": "o2"}); err != nil {
				t.Errorf("write: %v", err)
			}
		}(c)
	}
	wg.Wait()

	count := func() int {
		return shared.Current().Slides[0].(*domain.PollSlide).Options[1].Count
	}
	want := deck.Default().Slides[0].(*domain.PollSlide).Options[1].Count + devices
	deadline := time.Now().Add(5 * time.Second)
	for count() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := count(); got != want {
		t.Errorf("o2 count = %d, want %d", got, want)
	}
	if n := registry.Len(); n != devices {
		t.Errorf("registry tracks %d devices, want %d", n, devices)
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	if ParseRole("presenter") != RolePresenter || ParseRole("") != RoleParticipant || ParseRole("admin") != RoleParticipant {
		t.Error("ParseRole mapping wrong")
	}
}
