package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/tutor/pkg/config"
	"mercator-hq/tutor/pkg/conversation"
	"mercator-hq/tutor/pkg/limits/ratelimit"
	"mercator-hq/tutor/pkg/session"
	"mercator-hq/tutor/pkg/telemetry/health"
)

// Metrics records per-request telemetry. *metrics.Collector satisfies it.
type Metrics interface {
	RecordRequest(route, method string, status int, duration time.Duration)
	RecordTokens(promptTokens, completionTokens int)
}

// BuildInfo is reported by GET /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Conversation *conversation.Service
	Sessions     *session.Manager
	Limiter      *ratelimit.Limiter
	Health       *health.Checker

	// Metrics is optional. MetricsHandler is mounted at MetricsPath when set.
	Metrics        Metrics
	MetricsHandler http.Handler
	MetricsPath    string

	// Tracing enables the OpenTelemetry server middleware.
	Tracing bool

	Build BuildInfo
}

// Server is the tutor HTTP API server.
type Server struct {
	config       *config.ServerConfig
	deps         Deps
	handler      http.Handler
	httpServer   *http.Server
	logger       *slog.Logger
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server. The routes are built once and shared by Start and
// Handler.
func New(cfg *config.ServerConfig, deps Deps, logger *slog.Logger) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("server config is required")
	case deps.Conversation == nil:
		return nil, errors.New("conversation service is required")
	case deps.Sessions == nil:
		return nil, errors.New("session manager is required")
	case deps.Limiter == nil:
		return nil, errors.New("rate limiter is required")
	case deps.Health == nil:
		return nil, errors.New("health checker is required")
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
	s.handler = s.routes()
	return s, nil
}

// Start serves on the configured address and blocks until ctx is canceled
// or the listener fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting tutor server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully shuts down the server, waiting up to
// ShutdownTimeout for in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		running := s.isRunning
		s.mu.Unlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("tutor server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(string, string, int, time.Duration) {}
func (noopMetrics) RecordTokens(int, int)                            {}
