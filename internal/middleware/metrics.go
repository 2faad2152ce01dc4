package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jalsakhi/model-gateway/internal/metrics"
)

// RouteLabeler maps a request to a bounded route label for metrics.
type RouteLabeler func(r *http.Request) string

// Metrics records HTTP request count, latency, and the in-flight gauge.
// label keeps the route label set bounded; raw paths are never used.
func Metrics(m *metrics.Metrics, label RouteLabeler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := label(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
