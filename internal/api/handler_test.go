//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/deck"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/identity"
	"github.com/ashureev/hudong/internal/provider"
	"github.com/ashureev/hudong/internal/session"
	"github.com/ashureev/hudong/internal/store"
	"github.com/go-chi/chi/v5"
)

type testEnv struct {
	h      *Handler
	router http.Handler
	slot   *store.MemorySlot
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	slot := store.NewMemory()
	bus := session.NewLocalBroadcaster(0, nil)
	st := session.New(slot, store.DefaultKey, bus, deck.Default(), nil)
	t.Cleanup(st.Close)
	if _, err := st.Initialize(t.Context()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	h := NewHandler(Deps{
		Store:        st,
		Presenter:    control.NewPresenter(st, provider.New(provider.Canned{}, time.Second, nil), nil),
		Registry:     control.NewRegistry(st, time.Hour, nil),
		Slot:         slot,
		Bus:          bus,
		Default:      deck.Default(),
		SSEKeepalive: time.Hour,
	})

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return &testEnv{h: h, router: r, slot: slot}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type sessionBody struct {
	Moved         bool                `json:"moved"`
	Session       domain.SessionState `json:"session"`
	CurrentSlide  domain.SlideRecord  `json:"currentSlide"`
	ResponseCount int                 `json:"responseCount"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func deviceCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == identity.DeviceCookieName {
			return c
		}
	}
	t.Fatal("Expected a device cookie")
	return nil
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{control.ErrAlreadyResponded, http.StatusConflict},
		{control.ErrSlideNotDisplayed, http.StatusConflict},
		{control.ErrNothingExtracted, http.StatusUnprocessableEntity},
		{control.ErrEmptyTopic, http.StatusBadRequest},
		{control.ErrResponseTooLong, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidSession), http.StatusBadRequest},
		{&domain.DeserializationError{Err: errors.New("bad")}, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decode[sessionBody](t, w)
	if got.Session.Code != "8816 2024" {
		t.Errorf("Expected code 8816 2024, got %q", got.Session.Code)
	}
	if got.CurrentSlide.ID != "s1" || got.CurrentSlide.Type != domain.SlidePoll {
		t.Errorf("Expected poll s1, got %+v", got.CurrentSlide)
	}
	if got.ResponseCount != 40 {
		t.Errorf("Expected 40 responses, got %d", got.ResponseCount)
	}
}

func TestAdvanceAndJump(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/session/advance", `{"direction":"next"}`)
	got := decode[sessionBody](t, w)
	if !got.Moved || got.Session.CurrentSlideIndex != 1 {
		t.Fatalf("Expected move to index 1, got moved=%v index=%d", got.Moved, got.Session.CurrentSlideIndex)
	}

	w = env.do(t, http.MethodPost, "/api/session/jump", `{"index":0}`)
	got = decode[sessionBody](t, w)
	if !got.Moved || got.Session.CurrentSlideIndex != 0 {
		t.Fatalf("Expected jump to index 0, got moved=%v index=%d", got.Moved, got.Session.CurrentSlideIndex)
	}

	w = env.do(t, http.MethodPost, "/api/session/advance", `{"direction":"prev"}`)
	got = decode[sessionBody](t, w)
	if got.Moved || got.Session.CurrentSlideIndex != 0 {
		t.Errorf("Expected no move before the first slide, got moved=%v index=%d", got.Moved, got.Session.CurrentSlideIndex)
	}

	w = env.do(t, http.MethodPost, "/api/session/jump", `{"index":9}`)
	got = decode[sessionBody](t, w)
	if got.Moved {
		t.Error("Expected out-of-range jump to be ignored")
	}

	if w := env.do(t, http.MethodPost, "/api/session/advance", `{"direction":"sideways"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown direction, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/session/jump", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing index, got %d", w.Code)
	}
}

func TestPutSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	doc := `{"code":"1234","isActive":true,"currentSlideIndex":0,"slides":[{"id":"q","type":"QNA","question":"?"}]}`
	w := env.do(t, http.MethodPut, "/api/session", doc)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := env.h.Store.Current(); got.Code != "1234" || len(got.Slides) != 1 {
		t.Errorf("Expected replaced document, got %+v", got)
	}

	if w := env.do(t, http.MethodPut, "/api/session", `{"slides":`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed document, got %d", w.Code)
	}
	bad := `{"code":"1","currentSlideIndex":5,"slides":[{"id":"q","type":"QNA","question":"?"}]}`
	if w := env.do(t, http.MethodPut, "/api/session", bad); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid document, got %d", w.Code)
	}
}

func TestRespondOncePerVisit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/participant", "")
	cookie := deviceCookie(t, w)
	view := decode[struct {
		Code       string             `json:"code"`
		Slide      domain.SlideRecord `json:"slide"`
		CanRespond bool               `json:"canRespond"`
	}](t, w)
	if !view.CanRespond || view.Slide.ID != "s1" {
		t.Fatalf("Expected to be able to answer s1, got %+v", view)
	}

	if w := env.do(t, http.MethodPost, "/api/responses", `{"slideId":"s1","value":"o2"}`, cookie); w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/responses", `{"slideId":"s1","value":"o2"}`, cookie); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second answer, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/responses", `{"slideId":"s2","value":"快"}`, cookie); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a slide that is not displayed, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/slides/s1/results", "")
	summary := decode[struct {
		Total   int `json:"total"`
		Options []struct {
			ID    string `json:"id"`
			Count int    `json:"count"`
		} `json:"options"`
	}](t, w)
	if summary.Total != 41 {
		t.Errorf("Expected 41 votes, got %d", summary.Total)
	}
	if summary.Options[1].ID != "o2" || summary.Options[1].Count != 9 {
		t.Errorf("Expected o2 to have 9 votes, got %+v", summary.Options[1])
	}

	// A different device has its own visit.
	if w := env.do(t, http.MethodPost, "/api/responses", `{"slideId":"s1","value":"o1"}`); w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202 for a new device, got %d", w.Code)
	}
}

func TestRespondValidatesText(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/session/jump", `{"index":1}`)

	long := strings.Repeat("字", control.MaxWordLength+1)
	if w := env.do(t, http.MethodPost, "/api/responses", `{"slideId":"s2","value":"`+long+`"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a long word, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/responses", `{"slideId":"s2","value":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a blank word, got %d", w.Code)
	}
}

func TestAppendSlides(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	body := `{"slides":[{"type":"POLL","question":"选哪个？","options":[{"id":"a","label":"甲"},{"id":"b","label":"乙"}]}]}`
	w := env.do(t, http.MethodPost, "/api/slides", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	got := env.h.Store.Current()
	if len(got.Slides) != 4 || got.CurrentSlideIndex != 3 {
		t.Fatalf("Expected 4 slides showing index 3, got %d at %d", len(got.Slides), got.CurrentSlideIndex)
	}
	if got.Slides[3].SlideID() == "" {
		t.Error("Expected appended slide to be given an id")
	}

	if w := env.do(t, http.MethodPost, "/api/slides", `{"slides":[{"id":"x","type":"quiz","question":"?"}]}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown slide type, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/slides", `{"slides":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for no slides, got %d", w.Code)
	}
}

func TestGenerateSlide(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/slides/generate", `{"topic":"Go","type":"WORD_CLOUD"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	got := env.h.Store.Current()
	if len(got.Slides) != 4 || got.CurrentSlide().Type() != domain.SlideWordCloud {
		t.Errorf("Expected a word cloud appended, got %d slides", len(got.Slides))
	}

	if w := env.do(t, http.MethodPost, "/api/slides/generate", `{"topic":"  ","type":"POLL"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank topic, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/slides/generate", `{"topic":"Go","type":"quiz"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", w.Code)
	}
}

func TestImportDocument(t *testing.T) {
	t.Parallel()

	t.Run("raw text body", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/api/slides/import", strings.NewReader("并发\n通道\n"))
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		if got := len(env.h.Store.Current().Slides); got != 7 {
			t.Errorf("Expected 7 slides, got %d", got)
		}
	})

	t.Run("multipart", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("document", "notes.txt")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("接口\n"))
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/slides/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		if got := len(env.h.Store.Current().Slides); got != 5 {
			t.Errorf("Expected 5 slides, got %d", got)
		}
	})

	t.Run("nothing extracted", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		req := httptest.NewRequest(http.MethodPost, "/api/slides/import", bytes.NewReader(png))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected status 422, got %d", w.Code)
		}
		if got := len(env.h.Store.Current().Slides); got != 3 {
			t.Errorf("Expected deck unchanged, got %d slides", got)
		}
	})
}

func TestResultsNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/slides/nope/results", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStatsAndHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/participant", "")

	w := env.do(t, http.MethodGet, "/api/stats", "")
	stats := decode[statsView](t, w)
	if stats.Devices != 1 {
		t.Errorf("Expected 1 device, got %d", stats.Devices)
	}
	if stats.BusSubscribers != 1 {
		t.Errorf("Expected 1 bus subscriber, got %d", stats.BusSubscribers)
	}

	if w := env.do(t, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}
