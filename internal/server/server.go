// Package server exposes the planner over HTTP.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/fedplan/internal/watch"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes bounds the size of a planning request.
const maxBodyBytes = 1 << 20

// Recorder is told about every planned statement.
type Recorder func(ctx context.Context, sql string, p *plan.Plan, err error)

// Config holds configuration for the planning server.
type Config struct {
	Addr    string
	Catalog *catalog.Catalog
	Logger  *slog.Logger

	// WatchPath, when set, is watched and Reload is called after it changes.
	WatchPath string
	Reload    func() (*catalog.Catalog, error)

	// Recorder is optional.
	Recorder Recorder
}

// Server is the planning API server.
type Server struct {
	addr      string
	logger    *slog.Logger
	watchPath string
	reload    func() (*catalog.Catalog, error)
	recorder  Recorder

	mu      sync.RWMutex
	catalog *catalog.Catalog
}

// New creates a server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.New()
	}
	return &Server{
		addr:      cfg.Addr,
		logger:    logger,
		watchPath: cfg.WatchPath,
		reload:    cfg.Reload,
		recorder:  cfg.Recorder,
		catalog:   cat,
	}
}

// Catalog returns the catalog requests are planned against.
func (s *Server) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// SetCatalog replaces the catalog for subsequent requests.
func (s *Server) SetCatalog(c *catalog.Catalog) {
	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/plan", s.handlePlan)
		r.Get("/catalog", s.handleCatalog)
	})
	return r
}

// requestLogger logs method, path, status and duration of each request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Reload rebuilds the catalog with the configured reload function.
func (s *Server) Reload() error {
	if s.reload == nil {
		return nil
	}
	c, err := s.reload()
	if err != nil {
		return fmt.Errorf("failed to reload catalog: %w", err)
	}
	s.SetCatalog(c)
	s.logger.Info("catalog reloaded", "integrations", len(c.Integrations()), "predictors", len(c.Predictors()))
	return nil
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting planning server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watchPath != "" && s.reload != nil {
		eg.Go(func() error {
			return watch.File(egctx, s.watchPath, s.logger, func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("catalog reload failed, keeping previous catalog", "error", err)
				}
			})
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down planning server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
