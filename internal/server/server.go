// Package server exposes the pipeline over HTTP for external dashboards.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
)

// Timeouts of the HTTP server. Writes allow for a cold multi-step fetch.
const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 2 * time.Minute
	shutdownTimeout = 15 * time.Second
)

// Server wraps http.Server with graceful shutdown.
type Server struct {
	httpServer *http.Server
}

// New creates a server listening on addr.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("stopping http server", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
