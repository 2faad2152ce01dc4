// Package metrics defines the Prometheus collectors for the gateway and the
// optional scrape listener.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter
	GuardRejectionsTotal *prometheus.CounterVec
	UpstreamErrorsTotal  *prometheus.CounterVec
	UpstreamDuration     *prometheus.HistogramVec
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		GuardRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_guard_rejections_total",
				Help: "Requests short-circuited by a guard, by status code.",
			},
			[]string{"status"},
		),
		UpstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_errors_total",
				Help: "Upstream transport failures by mount and kind (unavailable, timeout).",
			},
			[]string{"mount", "kind"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_duration_seconds",
				Help:    "Time until upstream response headers, by mount.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mount"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.GuardRejectionsTotal,
		m.UpstreamErrorsTotal,
		m.UpstreamDuration,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGuardRejection counts a guard short-circuit. Safe on a nil receiver.
func (m *Metrics) RecordGuardRejection(status int) {
	if m == nil {
		return
	}
	if status == http.StatusTooManyRequests {
		m.RateLimitedTotal.Inc()
	}
	m.GuardRejectionsTotal.WithLabelValues(fmt.Sprint(status)).Inc()
}

// RecordUpstreamError counts an upstream transport failure. Safe on a nil receiver.
func (m *Metrics) RecordUpstreamError(mount, kind string) {
	if m == nil {
		return
	}
	m.UpstreamErrorsTotal.WithLabelValues(mount, kind).Inc()
}

// ObserveUpstream records upstream latency. Safe on a nil receiver.
func (m *Metrics) ObserveUpstream(mount string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(mount).Observe(d.Seconds())
}

// StartServer serves /metrics on addr in the background and returns its
// shutdown function.
func (m *Metrics) StartServer(addr string, log *zap.Logger) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("metrics_server_listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_error", zap.Error(err))
		}
	}()

	return server.Shutdown
}
