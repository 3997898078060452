// Package api provides the HTTP JSON API for the order assistant.
//
// Endpoints:
//
//	POST /chats/send  →  one chat round (message + history in, reply + history out)
//	GET  /health      →  liveness probe
//	GET  /ready       →  readiness probe (storage ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, request ID, logging)
//   - chat.go: chat endpoint
//   - health.go: health check endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kibocha/orderdesk/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to block Slowloris-style abuse.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because a chat round makes two model calls.
	WriteTimeout = 2 * time.Minute

	// IdleTimeout is the keep-alive limit between requests.
	IdleTimeout = 2 * time.Minute
)

// Server is the HTTP server for the order assistant API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// ReadyCheck probes backing storage for the readiness endpoint.
type ReadyCheck func(ctx context.Context) error

// NewServer creates a server with all routes registered. sender is the chat
// orchestrator; the server itself holds no conversation state. ready may be
// nil when there is no storage to probe.
func NewServer(sender Sender, ready ReadyCheck, logger log.Logger) (*Server, error) {
	if sender == nil {
		return nil, errors.New("chat sender is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /ready", readiness(ready))

	ch := &chatHandler{sender: sender, logger: logger}
	mux.HandleFunc("POST /chats/send", ch.send)

	return &Server{mux: mux, logger: logger}, nil
}

// Handler returns the server's handler with middleware applied.
// Middleware order: recovery → request ID → logging → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware(),
		loggingMiddleware(s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
