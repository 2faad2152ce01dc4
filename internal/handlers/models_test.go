package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestModelHandler_Success(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	h := NewModelHandler("model2", 20*time.Millisecond, zap.New(core))

	start := time.Now()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/model2", nil))

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected simulated latency of 20ms, returned after %v", elapsed)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if want := map[string]any{"model": "model2", "ok": true}; !reflect.DeepEqual(body, want) {
		t.Errorf("Expected %v, got %v", want, body)
	}

	entries := logs.FilterMessage("model_completed").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 model_completed entry, got %d", len(entries))
	}
	if model := entries[0].ContextMap()["model"]; model != "model2" {
		t.Errorf("Expected model model2 in log, got %v", model)
	}
}

func TestModelHandler_Error(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	h := NewModelHandlerFunc("model1", func(context.Context, map[string]any) error {
		return errors.New("inference backend exploded")
	}, zap.New(core))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/model1", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"Internal server error"}` {
		t.Errorf("Expected generic error body, got %s", got)
	}

	entries := logs.FilterMessage("model_error").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 model_error entry, got %d", len(entries))
	}
	if msg := entries[0].ContextMap()["error"]; msg != "inference backend exploded" {
		t.Errorf("Expected raw error in log, got %v", msg)
	}
}

func TestModelHandler_ClientCanceled(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	h := NewModelHandler("model3", time.Minute, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/model3", nil).WithContext(ctx))

	if w.Body.Len() != 0 {
		t.Errorf("Expected nothing written, got %q", w.Body.String())
	}
	if n := logs.FilterMessage("model_request_canceled").Len(); n != 1 {
		t.Errorf("Expected 1 model_request_canceled entry, got %d", n)
	}
	if n := logs.FilterMessage("model_completed").Len(); n != 0 {
		t.Errorf("Expected no model_completed entries, got %d", n)
	}
}

func TestSimulate_DeadlineIsError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := Simulate(time.Minute)(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}
