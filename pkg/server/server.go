// Package server provides the gateway's HTTP listener and route table.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"lumenroute/prism/pkg/config"
	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/proxy/handlers"
	"lumenroute/prism/pkg/proxy/middleware"
)

// ErrBindFailed wraps listener bind failures so the CLI can map them
// to exit code 3.
var ErrBindFailed = errors.New("failed to bind listen address")

// Server is the gateway's HTTP front end.
type Server struct {
	cfg     *config.Config
	gateway *gateway.Gateway

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server over an initialised gateway.
func New(cfg *config.Config, g *gateway.Gateway) *Server {
	return &Server{cfg: cfg, gateway: g}
}

// Start binds the listener and serves until ctx is cancelled or the
// server fails. Bind failures are returned wrapped in ErrBindFailed.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrBindFailed, addr, err)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "address", addr)
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully drains and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("server stopped")
	})

	return shutdownErr
}

// Handler builds the route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes (authenticated and rate limited).
	api := http.NewServeMux()
	api.Handle("/v1/chat/completions", handlers.NewChatHandler(s.gateway))
	api.Handle("/v1/completions", handlers.NewCompletionHandler(s.gateway))
	api.Handle("/v1/embeddings", handlers.NewEmbeddingHandler(s.gateway))
	api.Handle("/v1/images/generations", handlers.NewImageHandler(s.gateway))
	api.Handle("/v1/audio/transcriptions", handlers.NewAudioHandler(s.gateway))
	api.Handle("/v1/models", handlers.NewModelsHandler(s.gateway))
	api.Handle("/admin/circuit-breakers", handlers.NewBreakersHandler(s.gateway))

	var apiHandler http.Handler = api
	apiHandler = middleware.Timeout(s.cfg.Server.RequestTimeout)(apiHandler)
	apiHandler = middleware.BodyLimit(s.cfg.Server.MaxBodySize)(apiHandler)
	apiHandler = middleware.RateLimit(
		s.cfg.Auth.RateLimit.Enabled,
		s.cfg.Auth.RateLimit.RequestsPerSecond,
		s.cfg.Auth.RateLimit.Burst,
	)(apiHandler)
	apiHandler = middleware.Auth(s.cfg.Auth.Enabled, s.cfg.Auth.APIKeys)(apiHandler)

	mux.Handle("/v1/", apiHandler)
	mux.Handle("/admin/", apiHandler)

	// Unauthenticated observability routes.
	mux.Handle("/health", handlers.NewHealthHandler())
	mux.Handle("/metrics", handlers.NewMetricsHandler(s.gateway))
	if collector := s.gateway.Collector(); collector != nil {
		mux.Handle("/metrics/prometheus", collector.Handler())
	}

	// Outer chain, applied inside-out: CORS, request ID, logging,
	// recovery outermost.
	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		Enabled:        s.cfg.Server.CORS.Enabled,
		AllowedOrigins: s.cfg.Server.CORS.AllowedOrigins,
		AllowedMethods: s.cfg.Server.CORS.AllowedMethods,
		AllowedHeaders: s.cfg.Server.CORS.AllowedHeaders,
	})(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
