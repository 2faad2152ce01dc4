package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/jalsakhi/model-gateway/internal/proxy"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func mountsFor(t *testing.T, upstreams map[string]string) []*proxy.Mount {
	t.Helper()
	var cfgs []config.MountConfig
	for name, url := range upstreams {
		cfgs = append(cfgs, config.MountConfig{Name: name, Prefix: "/" + name, Upstream: url, Label: name})
	}
	table, err := proxy.NewTable(cfgs)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table.Mounts()
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(body) != 1 || body["status"] != "ok" {
		t.Errorf("Expected {\"status\":\"ok\"}, got %s", w.Body.String())
	}
}

func TestHealthChecker_BasicMode(t *testing.T) {
	t.Parallel()

	// Dependencies are not consulted without mode=extended.
	h := NewHealthChecker(nil, nil, fakePinger{err: errors.New("down")})

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "ok" {
		t.Errorf("Expected status ok, got %q", resp.Status)
	}
	if resp.Timestamp == "" {
		t.Error("Expected a timestamp")
	}
	if resp.Checks != nil {
		t.Errorf("Expected no checks in basic mode, got %v", resp.Checks)
	}
}

func TestHealthChecker_ExtendedMode(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	closed := "http://" + ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("Failed to close listener: %v", err)
	}

	tests := []struct {
		name       string
		upstreams  map[string]string
		store      Pinger
		wantStatus int
		wantState  string
		unhealthy  []string
	}{
		{
			name:       "all healthy",
			upstreams:  map[string]string{"crop-water": healthy.URL, "chatbot": healthy.URL},
			store:      fakePinger{},
			wantStatus: http.StatusOK,
			wantState:  "ok",
		},
		{
			name:       "upstream returns 500",
			upstreams:  map[string]string{"crop-water": healthy.URL, "chatbot": failing.URL},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
			unhealthy:  []string{"chatbot"},
		},
		{
			name:       "upstream unreachable and store down",
			upstreams:  map[string]string{"soil-moisture": closed},
			store:      fakePinger{err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
			unhealthy:  []string{"soil-moisture", "rate_limit_store"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(mountsFor(t, tt.upstreams), nil, tt.store)
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode=extended", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			resp := decodeHealth(t, w)
			if resp.Status != tt.wantState {
				t.Errorf("Expected status %q, got %q", tt.wantState, resp.Status)
			}

			wantChecks := len(tt.upstreams)
			if tt.store != nil {
				wantChecks++
			}
			if len(resp.Checks) != wantChecks {
				t.Errorf("Expected %d checks, got %d: %v", wantChecks, len(resp.Checks), resp.Checks)
			}

			for _, name := range tt.unhealthy {
				if !strings.HasPrefix(resp.Checks[name], "unhealthy: ") {
					t.Errorf("Expected %s to be unhealthy, got %q", name, resp.Checks[name])
				}
			}
			for name, result := range resp.Checks {
				if !contains(tt.unhealthy, name) && result != "healthy" {
					t.Errorf("Expected %s to be healthy, got %q", name, result)
				}
			}
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
