package middleware

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jalsakhi/model-gateway/internal/request"
)

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	w := httptest.NewRecorder()
	SecurityHeaders(true)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for name, want := range headers {
		if got := w.Header().Get(name); got != want {
			t.Errorf("Expected %s %q, got %q", name, want, got)
		}
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("Expected no HSTS without TLS, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	SecurityHeaders(true)(ok).ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); !strings.Contains(got, "max-age=") {
		t.Errorf("Expected HSTS over TLS, got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = request.RequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("Expected a generated UUID, got %q: %v", seen, err)
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("Expected response id %q, got %q", seen, got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != "caller-id" {
		t.Errorf("Expected caller id in context, got %q", seen)
	}
	if got := w.Header().Get(RequestIDHeader); got != "caller-id" {
		t.Errorf("Expected caller id echoed, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := CORS([]string{"https://app.example.com"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/model1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected preflight status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Expected allowed origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for unknown origin, got %q", got)
	}

	w = httptest.NewRecorder()
	CORS(nil)(ok).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected pass-through when CORS is disabled, got %d", w.Code)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	var hasDeadline bool
	var ctxErr error
	h := Timeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, hasDeadline = r.Context().Deadline()
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))

	start := time.Now()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !hasDeadline {
		t.Fatal("Expected a deadline on the request context")
	}
	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", ctxErr)
	}
	if diff := deadline.Sub(start.Add(50 * time.Millisecond)); diff < -40*time.Millisecond || diff > 40*time.Millisecond {
		t.Errorf("Expected deadline about 50ms after start, off by %v", diff)
	}
}
