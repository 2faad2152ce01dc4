// Package server assembles the gateway's HTTP handler and runs it until a
// shutdown signal arrives.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/jalsakhi/model-gateway/internal/handlers"
	logpkg "github.com/jalsakhi/model-gateway/internal/logger"
	"github.com/jalsakhi/model-gateway/internal/metrics"
	"github.com/jalsakhi/model-gateway/internal/middleware"
	"github.com/jalsakhi/model-gateway/internal/proxy"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// ServiceName identifies the gateway in traces.
const ServiceName = "model-gateway"

// Deps are the collaborators the router wires together.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Limiter *middleware.RateLimiter
	Proxy   *proxy.Proxy
	// Client probes upstream health; nil uses http.DefaultClient.
	Client *http.Client
	// Store is probed by /healthz?mode=extended when it is shared (Redis).
	Store handlers.Pinger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	Tracing bool
}

// NewRouter builds the full handler: outer middleware, proxy mounts, the
// rate-limited health and model routes, and the rate-limited 404 fallback.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	log := d.Logger

	// Paths reach the proxy as received; mux would otherwise redirect
	// non-clean paths instead of routing them.
	r := mux.NewRouter().SkipClean(true)
	if d.Tracing {
		r.Use(otelmux.Middleware(ServiceName))
	}

	// Proxy mounts match first. They stream bodies untouched and are not
	// rate limited.
	r.MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return d.Proxy.Matches(req)
	}).Handler(d.Proxy)

	rateLimit := d.Limiter.Guard()
	limited := middleware.Guards(d.Metrics, rateLimit)

	healthChecker := handlers.NewHealthChecker(d.Proxy.Table().Mounts(), d.Client, d.Store)
	r.Handle("/health", limited(http.HandlerFunc(handlers.Health))).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/healthz", limited(http.HandlerFunc(healthChecker.HealthCheck))).Methods(http.MethodGet, http.MethodHead)

	modelGuards := middleware.Guards(d.Metrics,
		rateLimit,
		middleware.InternalKey(cfg.InternalAPIKey, log),
		middleware.JSONBody(cfg.BodyLimit, log),
	)
	for _, name := range handlers.ModelNames {
		model := handlers.NewModelHandler(name, cfg.ModelLatency, log)
		r.Handle("/"+name, modelGuards(model)).Methods(http.MethodPost)
	}

	notFound := limited(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		log.Warn("route_not_found",
			zap.String("method", req.Method),
			zap.String("path", logpkg.SanitizePath(req.URL.Path)),
		)
		middleware.RespondError(w, http.StatusNotFound, "Not found")
	}))
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound

	// Applied outermost last: the 404 fallback gets the same headers,
	// request id, logging and metrics as routed requests.
	var h http.Handler = r
	h = middleware.Timeout(cfg.RequestTimeout)(h)
	h = middleware.Metrics(d.Metrics, routeLabel(r, d.Proxy))(h)
	h = middleware.Logging(log, cfg.TrustProxy)(h)
	h = middleware.Recover(log)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(cfg.CORSAllowedOrigins)(h)
	h = middleware.SecurityHeaders(cfg.EnableHSTS)(h)
	return h
}

// routeLabel maps requests to mount prefixes or route templates.
func routeLabel(router *mux.Router, p *proxy.Proxy) middleware.RouteLabeler {
	return func(r *http.Request) string {
		if m, ok := p.Table().Lookup(r.URL.Path); ok {
			return m.Prefix
		}
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil && match.MatchErr == nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				return tpl
			}
		}
		return "unmatched"
	}
}
