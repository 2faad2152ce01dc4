package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRequestSize is the default maximum request body size (1MB)
	DefaultMaxRequestSize int64 = 1 << 20 // 1MB
)

const invalidBodyMessage = "Empty or invalid JSON body"

type bodyContextKey struct{}

// BodyFromContext returns the JSON object parsed by the JSONBody guard.
func BodyFromContext(ctx context.Context) map[string]any {
	body, _ := ctx.Value(bodyContextKey{}).(map[string]any)
	return body
}

// JSONBody requires a non-empty JSON object body of at most maxBytes. The
// parsed object is stored in the request context and the raw bytes are
// rewound onto r.Body.
func JSONBody(maxBytes int64, logger *zap.Logger) Guard {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(r *http.Request) Verdict {
		// Check Content-Length header early if present
		if r.ContentLength > maxBytes {
			return tooLarge(r, logger)
		}

		if !isJSONContentType(r.Header.Get("Content-Type")) || r.Body == nil {
			return invalidBody(r, logger, "not_json")
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
		_ = r.Body.Close()
		if err != nil {
			logger.Warn("request_body_read_failed",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("error", logpkg.SanitizeError(err)),
			)
			return Reject(http.StatusBadRequest, invalidBodyMessage)
		}
		if int64(len(data)) > maxBytes {
			return tooLarge(r, logger)
		}

		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil || body == nil {
			return invalidBody(r, logger, "not_an_object")
		}
		if len(body) == 0 {
			logger.Warn("rejected_empty_body", zap.String("path", logpkg.SanitizePath(r.URL.Path)))
			return Reject(http.StatusBadRequest, "Empty body")
		}

		r = r.WithContext(context.WithValue(r.Context(), bodyContextKey{}, body))
		r.Body = io.NopCloser(bytes.NewReader(data))
		return ContinueWith(r)
	}
}

func invalidBody(r *http.Request, logger *zap.Logger, reason string) Verdict {
	logger.Warn("rejected_invalid_json_body",
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.String("reason", reason),
	)
	return Reject(http.StatusBadRequest, invalidBodyMessage)
}

func tooLarge(r *http.Request, logger *zap.Logger) Verdict {
	logger.Warn("request_body_too_large",
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.Int64("content_length", r.ContentLength),
	)
	return Reject(http.StatusRequestEntityTooLarge, "Request body too large")
}

// isJSONContentType accepts application/json with any parameters.
func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}
