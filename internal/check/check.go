// Package check verifies a running gateway end to end: its own health, each
// proxy mount's upstream health, and the internal model routes.
package check

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/jalsakhi/model-gateway/internal/handlers"
	"github.com/jalsakhi/model-gateway/internal/middleware"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the gateway address checked when none is given.
const DefaultBaseURL = "http://localhost:5000"

const defaultConcurrency = 4

// errNoKey marks model checks that cannot run without the internal key.
var errNoKey = errors.New("INTERNAL_API_KEY not set (skipped)")

// Check is one request against the gateway and its acceptance rule.
type Check struct {
	Name   string
	Method string
	Path   string
	Body   any
	Auth   bool
	// Accept inspects a response whose status was 2xx.
	Accept func(body map[string]any) error
}

// Result is the outcome of a Check.
type Result struct {
	Name     string
	OK       bool
	Detail   string
	Duration time.Duration
}

// DefaultChecks returns the gateway health check, one health passthrough per
// mount, and one call per model route.
func DefaultChecks(mounts []config.MountConfig) []Check {
	checks := []Check{{
		Name:   "GET /health",
		Method: http.MethodGet,
		Path:   "/health",
		Accept: expectField("status", "ok"),
	}}

	for _, m := range mounts {
		c := Check{
			Name:   "GET " + m.Prefix + "/health",
			Method: http.MethodGet,
			Path:   m.Prefix + "/health",
		}
		if m.Name == "chatbot" {
			c.Accept = expectField("status", "ok")
		}
		checks = append(checks, c)
	}

	for _, name := range handlers.ModelNames {
		checks = append(checks, Check{
			Name:   "POST /" + name,
			Method: http.MethodPost,
			Path:   "/" + name,
			Body:   map[string]any{"test": true},
			Auth:   true,
			Accept: expectField("model", name),
		})
	}
	return checks
}

func expectField(key, want string) func(map[string]any) error {
	return func(body map[string]any) error {
		if got, _ := body[key].(string); got != want {
			return fmt.Errorf("expected %s %q, got %v", key, want, body[key])
		}
		return nil
	}
}

// Runner executes checks against one gateway.
type Runner struct {
	baseURL     string
	key         string
	client      *http.Client
	concurrency int
}

// NewRunner creates a Runner. key may be empty, which fails the model checks
// without sending them.
func NewRunner(baseURL, key string, client *http.Client) *Runner {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Runner{
		baseURL:     strings.TrimRight(baseURL, "/"),
		key:         key,
		client:      client,
		concurrency: defaultConcurrency,
	}
}

// Run executes checks concurrently and returns results in check order.
func (r *Runner) Run(ctx context.Context, checks []Check) []Result {
	results := make([]Result, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range checks {
		g.Go(func() error {
			start := time.Now()
			detail, err := r.run(gctx, c)
			results[i] = Result{Name: c.Name, OK: err == nil, Detail: detail, Duration: time.Since(start)}
			if err != nil {
				results[i].Detail = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) run(ctx context.Context, c Check) (string, error) {
	if c.Auth && r.key == "" {
		return "", errNoKey
	}

	var body io.Reader
	if c.Body != nil {
		data, err := json.Marshal(c.Body)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method, r.baseURL+c.Path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Auth {
		req.Header.Set(middleware.InternalKeyHeader, r.key)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var parsed map[string]any
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg, ok := parsed["error"].(string); ok {
			return "", fmt.Errorf("%d: %s", resp.StatusCode, msg)
		}
		return "", fmt.Errorf("%d", resp.StatusCode)
	}
	if c.Accept != nil {
		if err := c.Accept(parsed); err != nil {
			return "", fmt.Errorf("%d: %w", resp.StatusCode, err)
		}
	}
	return "ok", nil
}

// Passed counts successful results.
func Passed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.OK {
			n++
		}
	}
	return n
}
