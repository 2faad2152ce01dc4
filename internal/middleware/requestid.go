package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jalsakhi/model-gateway/internal/request"
)

// RequestIDHeader is echoed on responses and forwarded to upstreams.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// RequestID keeps a caller-supplied X-Request-ID or assigns a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(request.WithRequestID(r.Context(), id)))
	})
}
