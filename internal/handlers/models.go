package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"github.com/jalsakhi/model-gateway/internal/middleware"
	"go.uber.org/zap"
)

// DefaultModelLatency is the simulated inference time of a stub model.
const DefaultModelLatency = 500 * time.Millisecond

// ModelNames lists the stub model routes, each served at "/" + name.
var ModelNames = []string{"model1", "model2", "model3"}

// ModelFunc performs the model's work on a validated JSON body.
type ModelFunc func(ctx context.Context, body map[string]any) error

// Simulate waits for latency or until ctx is done.
func Simulate(latency time.Duration) ModelFunc {
	return func(ctx context.Context, _ map[string]any) error {
		timer := time.NewTimer(latency)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ModelHandler serves one stub model route behind the key and body guards.
type ModelHandler struct {
	name   string
	run    ModelFunc
	logger *zap.Logger
}

// NewModelHandler creates a handler that simulates latency before answering.
func NewModelHandler(name string, latency time.Duration, logger *zap.Logger) *ModelHandler {
	if latency < 0 {
		latency = DefaultModelLatency
	}
	return NewModelHandlerFunc(name, Simulate(latency), logger)
}

// NewModelHandlerFunc creates a handler backed by run.
func NewModelHandlerFunc(name string, run ModelFunc, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{name: name, run: run, logger: logger}
}

func (h *ModelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := logpkg.SanitizePath(r.URL.Path)

	err := h.run(r.Context(), middleware.BodyFromContext(r.Context()))
	switch {
	case err == nil:
		h.logger.Info("model_completed",
			zap.String("model", h.name),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		respondJSON(w, http.StatusOK, map[string]any{"model": h.name, "ok": true})
	case errors.Is(err, context.Canceled):
		h.logger.Warn("model_request_canceled",
			zap.String("model", h.name),
			zap.String("path", path),
		)
	default:
		h.logger.Error("model_error",
			zap.String("model", h.name),
			zap.String("path", path),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		middleware.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
