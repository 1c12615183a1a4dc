package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesAndReusesDeviceID(t *testing.T) {
	t.Parallel()

	var seen []string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, DeviceIDFromContext(r.Context()))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DeviceCookieName {
		t.Fatalf("cookies = %v, want one %s", cookies, DeviceCookieName)
	}
	if !IsValidDeviceID(seen[0]) {
		t.Fatalf("device id %q has wrong shape", seen[0])
	}
	if cookies[0].Secure {
		t.Error("cookie marked Secure in development")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen[1] != seen[0] {
		t.Errorf("second request got %q, want %q", seen[1], seen[0])
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	t.Parallel()

	var got string
	h := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = DeviceIDFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "../../etc/passwd"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got == "../../etc/passwd" || !IsValidDeviceID(got) {
		t.Errorf("forged id accepted: %q", got)
	}
	if c := w.Result().Cookies(); len(c) == 0 || !c[0].Secure {
		t.Error("production cookie should be Secure")
	}
}

func TestDeviceIDFromEmptyContext(t *testing.T) {
	t.Parallel()

	if id := DeviceIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("got %q, want empty", id)
	}
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	if got := IPFromRequest(r); got != "10.0.0.7" {
		t.Errorf("IPFromRequest = %q", got)
	}
}
