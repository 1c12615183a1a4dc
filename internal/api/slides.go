package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/provider"
	"github.com/ashureev/hudong/internal/tally"
	"github.com/go-chi/chi/v5"
)

const maxDocumentBytes = 10 << 20

// AppendSlides adds caller-supplied slides to the deck. Slides without an id
// are given one.
func (h *Handler) AppendSlides(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slides []json.RawMessage `json:"slides"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	slides := make([]domain.Slide, 0, len(req.Slides))
	for _, raw := range req.Slides {
		var rec domain.SlideRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			Error(w, http.StatusBadRequest, "invalid slide: "+err.Error())
			return
		}
		if strings.TrimSpace(rec.ID) == "" {
			rec.ID = provider.NewSlideID()
		}
		sl, err := rec.Slide()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		slides = append(slides, sl)
	}

	if err := h.Presenter.AppendSlides(r.Context(), slides); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"slides": slides, "session": h.Store.Current()})
}

// GenerateSlide asks the slide provider for a new slide and appends it.
func (h *Handler) GenerateSlide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Type  string `json:"type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := domain.ParseSlideType(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	slide, err := h.Presenter.GenerateSlide(r.Context(), req.Topic, t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"slide": slide, "session": h.Store.Current()})
}

// ImportDocument extracts slides from an uploaded document. The document is
// read from the multipart field "document" or, failing that, the raw body.
func (h *Handler) ImportDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	doc, mimeType, err := readDocument(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			Error(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(doc) == 0 {
		Error(w, http.StatusBadRequest, "document is empty")
		return
	}

	slides, err := h.Presenter.ImportDocument(r.Context(), doc, mimeType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.Info("Document imported", "mime_type", mimeType, "bytes", len(doc), "slides", len(slides))
	JSON(w, http.StatusCreated, map[string]any{"slides": slides, "session": h.Store.Current()})
}

func readDocument(r *http.Request) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, hdr, err := r.FormFile("document")
		if err != nil {
			return nil, "", errors.New("missing document field")
		}
		defer f.Close()
		doc, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		return doc, documentType(hdr.Header.Get("Content-Type"), doc), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r.Body); err != nil {
		return nil, "", err
	}
	doc := buf.Bytes()
	return doc, documentType(r.Header.Get("Content-Type"), doc), nil
}

// documentType prefers the declared type unless it is missing or generic.
func documentType(declared string, doc []byte) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || strings.HasPrefix(declared, "application/octet-stream") {
		return http.DetectContentType(doc)
	}
	return declared
}

// Results returns the tally summary for one slide.
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	slideID := chi.URLParam(r, "slideID")
	s := h.Store.Current()
	i := s.SlideIndex(slideID)
	if i < 0 {
		Error(w, http.StatusNotFound, "slide not found")
		return
	}
	JSON(w, http.StatusOK, tally.Summarize(s.Slides[i]))
}
