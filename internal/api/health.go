package api

import (
	"context"
	"net/http"
	"time"
)

// Health reports whether the storage slot is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Slot == nil {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := h.Slot.Ping(ctx); err != nil {
		h.Logger.Warn("Health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
