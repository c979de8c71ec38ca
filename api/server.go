// Package api provides the HTTP REST API for askbase.
//
// Endpoints:
//
//	POST /api/resolve        resolve a user query (cache, then retrieval)
//	GET  /api/stats          aggregate canonical-answer usage statistics
//	POST /api/admin/refresh  rebuild resolver snapshot + router config
//	GET  /health             liveness probe
//	GET  /ready              readiness probe (database ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - resolve.go: query resolution endpoint
//   - admin.go: stats and refresh endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askbase/askbase/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// Prevents Slowloris-style connection exhaustion.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum keep-alive wait for the next request.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for askbase's REST API.
type Server struct {
	mux *http.ServeMux

	// Handlers
	health  *HealthHandler
	resolve *ResolveHandler
	admin   *AdminHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, resolve *ResolveHandler, admin *AdminHandler, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		health:  NewHealthHandler(pool, logger),
		resolve: resolve,
		admin:   admin,
	}

	s.health.RegisterRoutes(mux)
	s.resolve.RegisterRoutes(mux)
	s.admin.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is canceled,
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
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
