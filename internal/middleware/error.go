package middleware

import (
	"fmt"
	"net/http"

	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"go.uber.org/zap"
)

// Recover turns a panic in a later handler into a generic 500 response. The
// panic value is logged server-side only.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("unhandled_error",
					zap.String("error", logpkg.SanitizeString(fmt.Sprint(rec), logpkg.MaxErrorMessageLength)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("method", r.Method),
				)
				respondError(w, http.StatusInternalServerError, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
