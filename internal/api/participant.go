package api

import (
	"net/http"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/identity"
	"github.com/ashureev/hudong/internal/realtime"
)

type participantView struct {
	Code       string       `json:"code"`
	Slide      domain.Slide `json:"slide"`
	CanRespond bool         `json:"canRespond"`
}

// Participant returns what the calling device sees: the join code, the
// displayed slide and whether it may still answer it.
func (h *Handler) Participant(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		Error(w, http.StatusUnauthorized, "missing device identity")
		return
	}
	s := h.Store.Current()
	p := h.Registry.Get(deviceID)
	p.Observe(s)
	JSON(w, http.StatusOK, participantView{
		Code:       s.Code,
		Slide:      s.CurrentSlide(),
		CanRespond: p.CanRespond(),
	})
}

// Respond records one answer from the calling device.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		Error(w, http.StatusUnauthorized, "missing device identity")
		return
	}
	var req struct {
		SlideID string `json:"slideId"`
		Value   string `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Registry.Get(deviceID).Submit(r.Context(), req.SlideID, req.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type statsView struct {
	Presenters         int   `json:"presenters"`
	Participants       int   `json:"participants"`
	Devices            int   `json:"devices"`
	Streams            int64 `json:"streams"`
	IgnoredSubmissions int64 `json:"ignoredSubmissions"`
	BusSubscribers     int   `json:"busSubscribers"`
	BusDropped         int64 `json:"busDropped"`
}

// Stats reports connection and delivery counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	v := statsView{
		Presenters:         h.Connections.Count(realtime.RolePresenter),
		Participants:       h.Connections.Count(realtime.RoleParticipant),
		Devices:            h.Registry.Len(),
		Streams:            h.streams.Load(),
		IgnoredSubmissions: h.Registry.Ignored(),
	}
	if h.Bus != nil {
		v.BusSubscribers = h.Bus.Subscribers()
		v.BusDropped = h.Bus.Dropped()
	}
	JSON(w, http.StatusOK, v)
}
