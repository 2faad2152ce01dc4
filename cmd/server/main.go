package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/jalsakhi/model-gateway/internal/handlers"
	"github.com/jalsakhi/model-gateway/internal/logger"
	"github.com/jalsakhi/model-gateway/internal/metrics"
	"github.com/jalsakhi/model-gateway/internal/middleware"
	"github.com/jalsakhi/model-gateway/internal/proxy"
	"github.com/jalsakhi/model-gateway/internal/server"
	"github.com/jalsakhi/model-gateway/internal/telemetry"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

const auxShutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Startup errors are logged before LOG_LEVEL is known.
	zapLogger, err := logger.New("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync(zapLogger)

	if err := config.LoadDotEnv(); err != nil {
		zapLogger.Error("failed_to_load_env_file", zap.Error(err))
		return 1
	}

	cfg, err := config.Load()
	if errors.Is(err, config.ErrMissingInternalKey) {
		zapLogger.Error("internal_api_key_not_set", zap.Error(err))
		return 1
	}
	if err != nil {
		zapLogger.Error("invalid_configuration", zap.Error(err))
		return 1
	}

	if cfg.LogLevel != "info" {
		if leveled, err := logger.New(cfg.LogLevel); err == nil {
			zapLogger = leveled
			defer logger.Sync(zapLogger)
		}
	}

	zapLogger.Info("server_starting",
		zap.Int("port", cfg.Port),
		zap.Int("mounts", len(cfg.Mounts)),
		zap.Int64("body_limit", cfg.BodyLimit),
		zap.Int64("rate_limit_max", cfg.RateLimitMax),
		zap.Duration("rate_limit_window", cfg.RateLimitWindow),
		zap.Bool("trust_proxy", cfg.TrustProxy),
		zap.Bool("redis_rate_limit", cfg.RedisURL != ""),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracing, shutdownTracing := telemetry.Setup(context.Background(), cfg.OTELEnabled, server.ServiceName, cfg.OTELEndpoint, zapLogger)

	var store limiter.Store = middleware.NewMemoryStore()
	var storePinger handlers.Pinger
	if cfg.RedisURL != "" {
		redisStore, err := middleware.NewRedisStore(cfg.RedisURL)
		if err != nil {
			zapLogger.Error("failed_to_connect_to_redis", zap.Error(err))
			return 1
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		store, storePinger = redisStore, redisStore
		zapLogger.Info("connected_to_redis")
	}

	m := metrics.New()
	stopMetrics := func(context.Context) error { return nil }
	if cfg.MetricsAddr != "" {
		stopMetrics = m.StartServer(cfg.MetricsAddr, zapLogger)
	}

	table, err := proxy.NewTable(cfg.Mounts)
	if err != nil {
		zapLogger.Error("invalid_mount_table", zap.Error(err))
		return 1
	}
	for _, mount := range table.Mounts() {
		zapLogger.Info("proxy_mounted",
			zap.String("mount", mount.Name),
			zap.String("prefix", mount.Prefix),
			zap.String("upstream", mount.Upstream.String()),
		)
	}

	client := proxy.NewClient()
	handler := server.NewRouter(server.Deps{
		Config:  cfg,
		Logger:  zapLogger,
		Limiter: middleware.NewRateLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow, cfg.TrustProxy, zapLogger),
		Proxy:   proxy.New(table, client, zapLogger, m, cfg.TrustProxy),
		Client:  client,
		Store:   storePinger,
		Metrics: m,
		Tracing: tracing,
	})

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		zapLogger.Error("server_failed_to_start", zap.Error(err))
		return 1
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	serveErr := server.New(handler, cfg, zapLogger).Serve(ln, signals)

	auxCtx, cancel := context.WithTimeout(context.Background(), auxShutdownTimeout)
	defer cancel()
	if err := stopMetrics(auxCtx); err != nil {
		zapLogger.Warn("failed_to_stop_metrics_server", zap.Error(err))
	}
	if err := shutdownTracing(auxCtx); err != nil {
		zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
	}

	switch {
	case errors.Is(serveErr, server.ErrForcedShutdown):
		return 1
	case serveErr != nil:
		zapLogger.Error("server_failed", zap.Error(serveErr))
		return 1
	}
	return 0
}
