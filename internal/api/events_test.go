//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/hudong/internal/domain"
)

type sseEvent struct {
	id    string
	event string
	data  string
}

func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.event != "" {
				return ev
			}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("Stream ended before an event: %v", sc.Err())
	return ev
}

func TestEventsStream(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/session/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	if !sc.Scan() || sc.Text() != "retry: 3000" {
		t.Fatalf("Expected retry header, got %q", sc.Text())
	}

	first := readEvent(t, sc)
	if first.event != "state" || first.id == "" {
		t.Fatalf("Expected an id'd state event, got %+v", first)
	}

	if _, err := env.h.Presenter.JumpTo(ctx, 2); err != nil {
		t.Fatalf("JumpTo failed: %v", err)
	}

	next := readEvent(t, sc)
	if next.event != "update" {
		t.Fatalf("Expected update event, got %+v", next)
	}
	var s domain.SessionState
	if err := json.Unmarshal([]byte(next.data), &s); err != nil {
		t.Fatalf("Failed to decode update: %v", err)
	}
	if s.CurrentSlideIndex != 2 {
		t.Errorf("Expected index 2 in update, got %d", s.CurrentSlideIndex)
	}
}
