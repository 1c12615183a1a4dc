// Package api provides HTTP handlers for the hudong API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/realtime"
	"github.com/ashureev/hudong/internal/session"
	"github.com/ashureev/hudong/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

// Deps are the collaborators the handlers share.
type Deps struct {
	// Store is the server's own session context; REST mutations commit
	// through it.
	Store       *session.Store
	Presenter   *control.Presenter
	Registry    *control.Registry
	Slot        store.Slot
	Bus         *session.LocalBroadcaster
	Default     domain.SessionState
	Connections *realtime.Connections

	SSERetry     time.Duration
	SSEKeepalive time.Duration
	Logger       *slog.Logger
}

// Handler serves the REST and SSE endpoints.
type Handler struct {
	Deps
	streams atomic.Int64
	eventID atomic.Int64
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SSERetry <= 0 {
		d.SSERetry = 3 * time.Second
	}
	if d.SSEKeepalive <= 0 {
		d.SSEKeepalive = 15 * time.Second
	}
	if d.Connections == nil {
		d.Connections = realtime.NewConnections()
	}
	return &Handler{Deps: d}
}

// RegisterRoutes registers the session API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Put("/session", h.PutSession)
		r.Post("/session/advance", h.Advance)
		r.Post("/session/jump", h.Jump)
		r.Get("/session/events", h.Events)

		r.Post("/slides", h.AppendSlides)
		r.Post("/slides/generate", h.GenerateSlide)
		r.Post("/slides/import", h.ImportDocument)
		r.Get("/slides/{slideID}/results", h.Results)

		r.Post("/responses", h.Respond)
		r.Get("/participant", h.Participant)
		r.Get("/stats", h.Stats)
		r.Get("/health", h.Health)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorStatus maps domain and controller errors to HTTP status codes.
func errorStatus(err error) int {
	var de *domain.DeserializationError
	switch {
	case errors.Is(err, control.ErrAlreadyResponded),
		errors.Is(err, control.ErrSlideNotDisplayed):
		return http.StatusConflict
	case errors.Is(err, control.ErrNothingExtracted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, control.ErrEmptyTopic),
		errors.Is(err, control.ErrEmptyResponse),
		errors.Is(err, control.ErrResponseTooLong),
		errors.Is(err, control.ErrNoSlides),
		errors.Is(err, domain.ErrInvalidSession),
		errors.Is(err, domain.ErrUnknownSlideType),
		errors.As(err, &de):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status, logging server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", "path", r.URL.Path, "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
