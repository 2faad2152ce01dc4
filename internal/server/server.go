package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jalsakhi/model-gateway/internal/config"
	"go.uber.org/zap"
)

// ErrForcedShutdown is returned by Serve when in-flight requests outlive the
// shutdown grace period and connections had to be closed.
var ErrForcedShutdown = errors.New("forced shutdown after grace period")

// DefaultShutdownGrace bounds graceful shutdown when none is configured.
const DefaultShutdownGrace = 10 * time.Second

// Server owns the HTTP server and its shutdown sequence.
type Server struct {
	http   *http.Server
	grace  time.Duration
	logger *zap.Logger
}

// New creates a Server for handler. The connection read and write timeouts
// are the configured request timeout.
func New(handler http.Handler, cfg *config.Config, logger *zap.Logger) *Server {
	grace := cfg.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	return &Server{
		http: &http.Server{
			Handler:        handler,
			ReadTimeout:    cfg.RequestTimeout,
			WriteTimeout:   cfg.RequestTimeout,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB max header size
			ErrorLog:       zap.NewStdLog(logger),
		},
		grace:  grace,
		logger: logger,
	}
}

// Serve accepts connections on ln until the first value arrives on signals,
// then drains in-flight requests for up to the grace period. It returns nil
// after a clean drain and ErrForcedShutdown when the grace period ran out.
// Later signals are never read.
func (s *Server) Serve(ln net.Listener, signals <-chan os.Signal) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server_listening", zap.String("addr", ln.Addr().String()))
		serveErr <- s.http.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case sig := <-signals:
		s.logger.Info("shutdown_signal_received", zap.String("signal", fmt.Sprint(sig)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("forced_shutdown_after_timeout",
			zap.Duration("grace", s.grace),
			zap.Error(err),
		)
		_ = s.http.Close()
		return ErrForcedShutdown
	}

	s.logger.Info("server_closed")
	return nil
}
