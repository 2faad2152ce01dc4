package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/jalsakhi/model-gateway/internal/metrics"
)

// Guard inspects a request before it reaches a handler and decides whether
// it may continue.
type Guard func(r *http.Request) Verdict

// Verdict is the outcome of a Guard.
type Verdict struct {
	// Request replaces the request seen by later guards and the handler.
	Request *http.Request
	// Header is added to the response whether or not the request is rejected.
	Header http.Header
	// Status and Message describe a rejection; Status is zero to continue.
	Status  int
	Message string
}

// Continue lets the request through unchanged.
func Continue() Verdict { return Verdict{} }

// ContinueWith lets the request through, replacing it with r.
func ContinueWith(r *http.Request) Verdict { return Verdict{Request: r} }

// Reject short-circuits the request with a JSON {"error": message} body.
func Reject(status int, message string) Verdict {
	return Verdict{Status: status, Message: message}
}

// Rejected reports whether the verdict stops the request.
func (v Verdict) Rejected() bool { return v.Status != 0 }

// Guards applies guards in order. The first rejection writes the error
// response and skips the remaining guards and the handler. m may be nil.
func Guards(m *metrics.Metrics, guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, guard := range guards {
				v := guard(r)
				for key, values := range v.Header {
					w.Header()[key] = values
				}
				if v.Rejected() {
					m.RecordGuardRejection(v.Status)
					respondError(w, v.Status, v.Message)
					return
				}
				if v.Request != nil {
					r = v.Request
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respondError writes the gateway's error shape: {"error": message}.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RespondError is exported for handlers that share the error shape.
func RespondError(w http.ResponseWriter, status int, message string) {
	respondError(w, status, message)
}
