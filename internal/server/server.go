// Package server provides the HTTP inspection API.
//
// Every inspection route lives under /api/packages/{kind}, where kind is a
// package family name such as "c" or "python", or a numeric package type
// identifier. The package and its stored attributes are passed as query
// parameters:
//   - package_path   - storage key of the archive (required)
//   - source_path    - directory inside the archive holding the sources
//   - build_dir, build_file, config_dir, build_system - stored build settings
//   - dirname, filter, recursive - listing scope
//   - filename       - member for contains and file
//   - candidate      - basename for search, repeatable
//
// Additional endpoints:
//   - /health    - Health check endpoint
//   - /metrics   - Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/pkginspect/internal/config"
	"github.com/git-pkgs/pkginspect/internal/inspect"
	"github.com/git-pkgs/pkginspect/internal/metrics"
)

// Server serves the inspection API.
type Server struct {
	cfg     *config.Config
	inspect *inspect.Service
	logger  *slog.Logger
	http    *http.Server
}

// New creates a Server answering requests with svc.
func New(cfg *config.Config, svc *inspect.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		inspect: svc,
		logger:  logger,
	}
}

// Router returns the HTTP handler with every route and middleware mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.LoggerMiddleware)
	r.Use(ActiveRequestsMiddleware)

	api := NewAPIHandler(s.inspect, s.logger)
	r.Route("/api/packages/{kind}", api.Routes)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // detection may run external tools
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server",
		"listen", s.cfg.Listen,
		"incoming", s.cfg.Storage.IncomingDir,
		"storage_url", s.cfg.Storage.URL,
		"listing", s.cfg.Archive.Listing)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if dir := s.cfg.Storage.IncomingDir; dir != "" {
		if _, err := os.Stat(dir); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "incoming directory: %v", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "ok")
}
