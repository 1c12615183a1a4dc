package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/session"
)

// Events streams the session document as server-sent events. Each stream is
// its own session context: it gets a "state" event on connect and an
// "update" event for every commit made elsewhere.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	var bus session.Broadcaster
	if h.Bus != nil {
		bus = h.Bus
	}
	st := session.New(h.Slot, h.Store.Key(), bus, h.Default, h.Logger)
	defer st.Close()

	updates := make(chan domain.SessionState, 8)
	stop := st.OnExternalUpdate(func(s domain.SessionState) {
		select {
		case updates <- s:
		default:
			h.Logger.Warn("SSE client too slow, update dropped", "context_id", st.ID())
		}
	})
	defer stop()

	initial, err := st.Initialize(r.Context())
	if err != nil {
		h.Logger.Warn("SSE session initialized with default", "context_id", st.ID(), "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.SSERetry.Milliseconds()); err != nil {
		h.Logger.Warn("failed to write SSE retry header", "error", err)
		return
	}
	if err := h.sendState(w, "state", initial); err != nil {
		h.Logger.Warn("failed to write SSE state event", "error", err)
		return
	}
	flusher.Flush()

	h.streams.Add(1)
	defer h.streams.Add(-1)
	h.Logger.Info("Session stream connected", "context_id", st.ID())
	defer h.Logger.Info("Session stream disconnected", "context_id", st.ID())

	keepalive := time.NewTicker(h.SSEKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-updates:
			if err := h.sendState(w, "update", s); err != nil {
				h.Logger.Warn("failed to write SSE update event", "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				h.Logger.Warn("failed to write SSE keepalive ping", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) sendState(w io.Writer, event string, s domain.SessionState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return writeSSEWithID(w, h.eventID.Add(1), event, string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
