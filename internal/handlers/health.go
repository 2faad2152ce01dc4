package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jalsakhi/model-gateway/internal/proxy"
	"golang.org/x/sync/errgroup"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"

	probeTimeout   = 5 * time.Second
	probeLimit     = 8
	upstreamHealth = "/health"
)

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health. It never consults dependencies.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": statusOK})
}

// HealthChecker handles GET /healthz, optionally probing dependencies.
type HealthChecker struct {
	mounts []*proxy.Mount
	client *http.Client
	store  Pinger
}

// NewHealthChecker creates a new health checker. store may be nil when the
// rate limiter keeps its counters in memory.
func NewHealthChecker(mounts []*proxy.Mount, client *http.Client, store Pinger) *HealthChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HealthChecker{mounts: mounts, client: client, store: store}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. With ?mode=extended every
// upstream and the rate limit store are probed concurrently.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if r.URL.Query().Get("mode") != "extended" {
		respondJSON(w, http.StatusOK, response)
		return
	}

	response.Checks = h.runChecks(r.Context())
	for _, result := range response.Checks {
		if result != "healthy" {
			response.Status = statusDegraded
			break
		}
	}

	statusCode := http.StatusOK
	if response.Status == statusDegraded {
		statusCode = http.StatusServiceUnavailable
	}
	respondJSON(w, statusCode, response)
}

func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var mu sync.Mutex
	checks := make(map[string]string, len(h.mounts)+1)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			return
		}
		checks[name] = "healthy"
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeLimit)

	for _, m := range h.mounts {
		g.Go(func() error {
			record(m.Name, h.probeUpstream(gctx, m))
			return nil
		})
	}
	if h.store != nil {
		g.Go(func() error {
			record("rate_limit_store", h.store.Ping(gctx))
			return nil
		})
	}

	_ = g.Wait()
	return checks
}

func (h *HealthChecker) probeUpstream(ctx context.Context, m *proxy.Mount) error {
	target := *m.Upstream
	target.Path = m.Upstream.Path + upstreamHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
