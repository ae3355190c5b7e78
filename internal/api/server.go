// Package api provides the HTTP REST API for the chat backend.
//
// Endpoints:
//
//	POST   /api/chat          - blocking question (JSON request/response)
//	POST   /api/chat/stream   - streaming question (Server-Sent Events)
//	POST   /api/chat/new      - create an empty session
//	GET    /api/chat/history  - list sessions, most recent first
//	GET    /api/chat/{id}     - fetch one session with messages
//	DELETE /api/chat/{id}     - delete a session
//	GET    /api/health        - health probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging, recovery, CORS, rate limiting
//   - chat.go: question endpoints (blocking and SSE)
//   - session.go: session management endpoints
//   - health.go: health probe
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/session"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads (Slowloris protection).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Config carries the server's transport settings.
type Config struct {
	Addr           string
	StaticDir      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Version        string
}

// Server is the HTTP server for the chat backend.
type Server struct {
	mux    *http.ServeMux
	cfg    Config
	logger log.Logger

	health   *HealthHandler
	sessions *SessionHandler
	chat     *ChatHandler
}

// NewServer creates a server with all routes registered. service runs the
// question pipeline; store backs the session endpoints; counter may be nil.
func NewServer(cfg Config, store *session.Store, service ChatService, counter DocumentCounter, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		cfg:      cfg,
		logger:   logger,
		health:   NewHealthHandler(store, counter, cfg.Version),
		sessions: NewSessionHandler(store, logger),
		chat:     NewChatHandler(service, logger),
	}

	s.health.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	if cfg.StaticDir != "" {
		if _, err := os.Stat(cfg.StaticDir); err == nil {
			mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
		} else {
			logger.Warn("static dir not found, not serving frontend", "dir", cfg.StaticDir)
		}
	}

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Order: recovery -> logging -> CORS -> rate limit -> handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware(s.cfg.CORSOrigins),
	}
	if s.cfg.RateLimitRPS > 0 && s.cfg.RateLimitBurst > 0 {
		middlewares = append(middlewares, newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst).middleware)
	}
	return chain(s.mux, middlewares...)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
		// No WriteTimeout: SSE streams stay open for the duration of a
		// generation and are bounded by the client context instead.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
