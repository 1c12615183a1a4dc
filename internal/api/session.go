package api

import (
	"io"
	"net/http"

	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/domain"
)

type sessionView struct {
	Session       domain.SessionState `json:"session"`
	CurrentSlide  domain.Slide        `json:"currentSlide"`
	ResponseCount int                 `json:"responseCount"`
}

func (h *Handler) view() sessionView {
	s := h.Store.Current()
	cur := s.CurrentSlide()
	return sessionView{
		Session:       s,
		CurrentSlide:  cur,
		ResponseCount: h.Presenter.ResponseCount(cur),
	}
}

// GetSession returns the current document with the displayed slide and its
// live response count.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.view())
}

// PutSession replaces the whole document.
func (h *Handler) PutSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := domain.Decode(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Presenter.Replace(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.view())
}

type moveResponse struct {
	Moved bool `json:"moved"`
	sessionView
}

// Advance moves one slide forward or back.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := control.ParseDirection(req.Direction)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	moved, err := h.Presenter.Advance(r.Context(), dir)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, moveResponse{Moved: moved, sessionView: h.view()})
}

// Jump displays the slide at the requested index.
func (h *Handler) Jump(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index *int `json:"index"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Index == nil {
		Error(w, http.StatusBadRequest, "index is required")
		return
	}
	moved, err := h.Presenter.JumpTo(r.Context(), *req.Index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, moveResponse{Moved: moved, sessionView: h.view()})
}
