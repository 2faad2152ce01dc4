package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"github.com/jalsakhi/model-gateway/internal/metrics"
	"github.com/jalsakhi/model-gateway/internal/middleware"
	"github.com/jalsakhi/model-gateway/internal/request"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Hop-by-hop headers are connection-scoped and never forwarded (RFC 9110 §7.6.1).
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

const copyBufferSize = 32 * 1024

// NewClient returns the upstream client shared by all mounts. It never
// follows redirects or decodes compressed bodies; deadlines come from the
// request context.
func NewClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Proxy dispatches requests to the forwarder of the matching mount.
type Proxy struct {
	table      *Table
	client     *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
	trustProxy bool
}

// New creates a Proxy over table. m may be nil.
func New(table *Table, client *http.Client, logger *zap.Logger, m *metrics.Metrics, trustProxy bool) *Proxy {
	if client == nil {
		client = NewClient()
	}
	return &Proxy{table: table, client: client, logger: logger, metrics: m, trustProxy: trustProxy}
}

// Table returns the mount table.
func (p *Proxy) Table() *Table { return p.table }

// Matches reports whether path falls under a mount.
func (p *Proxy) Matches(r *http.Request) bool {
	_, ok := p.table.Lookup(r.URL.Path)
	return ok
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mount, ok := p.table.Lookup(r.URL.Path)
	if !ok {
		middleware.RespondError(w, http.StatusNotFound, "Not found")
		return
	}
	p.forward(w, r, mount)
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, mount *Mount) {
	ctx := r.Context()

	out, err := p.outbound(ctx, r, mount)
	if err != nil {
		p.fail(w, r, mount, err)
		return
	}

	start := time.Now()
	resp, err := p.client.Do(out)
	p.metrics.ObserveUpstream(mount.Name, time.Since(start))
	if err != nil {
		p.fail(w, r, mount, err)
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	for key, values := range resp.Header {
		w.Header()[key] = values
	}
	w.WriteHeader(resp.StatusCode)

	if err := copyFlushing(w, resp.Body); err != nil && ctx.Err() == nil {
		p.logger.Warn("proxy_stream_interrupted",
			zap.String("mount", mount.Name),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
	}
}

// outbound builds the upstream request: prefix stripped, query kept,
// hop-by-hop headers dropped, forwarding and trace headers added.
func (p *Proxy) outbound(ctx context.Context, r *http.Request, mount *Mount) (*http.Request, error) {
	target := mount.UpstreamURL(r.URL)

	var body io.Reader
	if r.ContentLength != 0 {
		body = r.Body
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = r.ContentLength
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)

	clientIP := request.ClientIP(r, false)
	if prior := out.Header.Values("X-Forwarded-For"); len(prior) > 0 && p.trustProxy {
		clientIP = strings.Join(prior, ", ") + ", " + clientIP
	}
	out.Header.Set("X-Forwarded-For", clientIP)
	out.Header.Set("X-Forwarded-Host", r.Host)
	if r.TLS != nil {
		out.Header.Set("X-Forwarded-Proto", "https")
	} else {
		out.Header.Set("X-Forwarded-Proto", "http")
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))
	return out, nil
}

// fail maps an upstream error onto a response. Nothing is written when the
// client has already gone away.
func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, mount *Mount, err error) {
	path := logpkg.SanitizePath(r.URL.Path)

	switch {
	case errors.Is(r.Context().Err(), context.Canceled):
		p.logger.Warn("proxy_client_disconnected",
			zap.String("mount", mount.Name),
			zap.String("path", path),
		)
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		p.metrics.RecordUpstreamError(mount.Name, "timeout")
		p.logger.Error("proxy_timeout",
			zap.String("mount", mount.Name),
			zap.String("path", path),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		middleware.RespondError(w, http.StatusGatewayTimeout, mount.Label+" API timed out")
	default:
		p.metrics.RecordUpstreamError(mount.Name, "unavailable")
		p.logger.Error("proxy_error",
			zap.String("mount", mount.Name),
			zap.String("path", path),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		middleware.RespondError(w, http.StatusBadGateway, mount.Label+" API unavailable")
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func removeHopHeaders(h http.Header) {
	for _, value := range h.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// copyFlushing relays src to w, flushing after every chunk so streamed
// upstream responses reach the client as they arrive.
func copyFlushing(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
