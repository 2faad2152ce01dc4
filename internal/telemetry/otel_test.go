package telemetry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		endpoint    string
		wantErr     bool
	}{
		{
			name:        "valid configuration",
			serviceName: "model-gateway",
			endpoint:    "localhost:4318",
			wantErr:     false,
		},
		{
			name:        "empty service name",
			serviceName: "",
			endpoint:    "localhost:4318",
			wantErr:     false, // Should still succeed
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.serviceName, tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Errorf("InitTracer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tp != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := Shutdown(shutdownCtx, tp); err != nil {
					t.Errorf("Shutdown() error = %v", err)
				}
			}
		})
	}
}

func TestShutdown(t *testing.T) {
	t.Run("shutdown with nil provider", func(t *testing.T) {
		if err := Shutdown(context.Background(), nil); err != nil {
			t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		enabled, shutdown := Setup(context.Background(), false, "model-gateway", "localhost:4318", zap.NewNop())
		if enabled {
			t.Error("Expected tracing to be off")
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("noop shutdown returned %v", err)
		}
	})

	t.Run("enabled without endpoint", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		enabled, _ := Setup(context.Background(), true, "model-gateway", "", zap.New(core))
		if enabled {
			t.Error("Expected tracing to be off without an endpoint")
		}
		if logs.FilterMessage("otel_enabled_but_endpoint_not_configured").Len() != 1 {
			t.Error("Expected a warning about the missing endpoint")
		}
	})

	t.Run("enabled", func(t *testing.T) {
		enabled, shutdown := Setup(context.Background(), true, "model-gateway", "localhost:4318", zap.NewNop())
		if !enabled {
			t.Fatal("Expected tracing to be on")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
}
