package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS answers preflight requests and sets CORS headers for the allowed
// origins. With no origins configured it is a pass-through.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization", InternalKeyHeader, RequestIDHeader},
		ExposedHeaders: []string{
			"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset",
			"Retry-After", RequestIDHeader,
		},
		AllowCredentials: true,
		MaxAge:           86400, // Cache preflight for 24 hours
	})
	return c.Handler
}
