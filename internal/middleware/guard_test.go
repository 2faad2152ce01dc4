package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/jalsakhi/model-gateway/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type ctxKey struct{}

// assertErrorBody checks for the {"error": message} response shape.
func assertErrorBody(t *testing.T, body, want string) {
	t.Helper()
	var got map[string]string
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("Failed to decode body %q: %v", body, err)
	}
	if len(got) != 1 || got["error"] != want {
		t.Errorf("Expected {\"error\":%q}, got %s", want, body)
	}
}

func TestGuards_StopsAtFirstRejection(t *testing.T) {
	t.Parallel()

	var calls []string
	record := func(name string, v Verdict) Guard {
		return func(r *http.Request) Verdict {
			calls = append(calls, name)
			return v
		}
	}

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true })

	m := metrics.New()
	h := Guards(m,
		record("first", Verdict{Header: http.Header{"X-First": {"1"}}}),
		record("second", Reject(http.StatusForbidden, "Forbidden")),
		record("third", Continue()),
	)(handler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/model1", nil))

	if want := []string{"first", "second"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("Expected guards %v to run, got %v", want, calls)
	}
	if handlerCalled {
		t.Error("Expected handler not to be called after a rejection")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
	if got := w.Header().Get("X-First"); got != "1" {
		t.Errorf("Expected headers from earlier guards to be kept, got %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	assertErrorBody(t, w.Body.String(), "Forbidden")
	if got := testutil.ToFloat64(m.GuardRejectionsTotal.WithLabelValues("403")); got != 1 {
		t.Errorf("Expected 1 rejection recorded, got %v", got)
	}
}

func TestGuards_ReplacesRequest(t *testing.T) {
	t.Parallel()

	attach := func(r *http.Request) Verdict {
		return ContinueWith(r.WithContext(context.WithValue(r.Context(), ctxKey{}, "seen")))
	}
	check := func(r *http.Request) Verdict {
		if r.Context().Value(ctxKey{}) != "seen" {
			return Reject(http.StatusTeapot, "lost")
		}
		return Continue()
	}

	var got any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Context().Value(ctxKey{})
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	Guards(nil, attach, check)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if got != "seen" {
		t.Errorf("Expected handler to see the replaced request, got %v", got)
	}
}
