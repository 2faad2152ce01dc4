package middleware

import (
	"net/http"

	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"go.uber.org/zap"
)

// InternalKeyHeader carries the shared secret for internal model routes.
const InternalKeyHeader = "X-Internal-Key"

// InternalKey admits only requests whose X-Internal-Key header equals
// expected. An empty expected key rejects everything with 503 so a
// misconfigured process never serves the model routes openly.
func InternalKey(expected string, logger *zap.Logger) Guard {
	return func(r *http.Request) Verdict {
		if expected == "" {
			logger.Error("internal_api_key_not_configured",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			)
			return Reject(http.StatusServiceUnavailable, "Server misconfiguration")
		}

		key := r.Header.Get(InternalKeyHeader)
		if key == "" || key != expected {
			logger.Warn("rejected_missing_or_invalid_internal_key",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			)
			return Reject(http.StatusForbidden, "Forbidden")
		}

		return Continue()
	}
}
