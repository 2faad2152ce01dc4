// Package telemetry configures OpenTelemetry tracing for the gateway.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.uber.org/zap"
)

// InitTracer builds a batching tracer provider that exports spans over
// OTLP/HTTP to endpoint, installs it globally and sets the propagator.
func InitTracer(ctx context.Context, serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // collectors run beside the gateway on the private network
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// OTEL_RESOURCE_ATTRIBUTES may add deployment attributes; the service
	// name always comes from the caller.
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Requests that arrive traced keep the caller's sampling decision.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	SetPropagator()

	return tp, nil
}

// SetPropagator installs W3C trace context and baggage propagation, which
// the proxy uses to pass the trace on to upstreams.
func SetPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Setup starts tracing when enabled and returns the function that flushes
// and stops it. Failures are logged and leave tracing off.
func Setup(ctx context.Context, enabled bool, serviceName, endpoint string, logger *zap.Logger) (tracing bool, shutdown func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if !enabled {
		return false, noop
	}
	if endpoint == "" {
		logger.Warn("otel_enabled_but_endpoint_not_configured")
		return false, noop
	}

	tp, err := InitTracer(ctx, serviceName, endpoint)
	if err != nil {
		logger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return false, noop
	}

	logger.Info("otel_tracer_initialized", zap.String("endpoint", endpoint))
	return true, func(ctx context.Context) error { return Shutdown(ctx, tp) }
}

// Shutdown gracefully shuts down the tracer provider
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
