// Package server exposes the audit pipeline over HTTP.
//
// Routes:
//
//	POST /scan            run an audit for {"libraries": [...]}
//	GET  /reports/{id}    fetch an archived run
//	GET  /healthz         liveness probe
//	GET  /version         build information
//	GET  /metrics         Prometheus metrics (when configured)
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackaudit/pkg/pipeline"
	"github.com/matzehuels/stackaudit/pkg/report"
)

// Defaults for Config.
const (
	DefaultTimeout      = 5 * time.Minute
	DefaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 15 * time.Second
)

// Executor runs one audit. [pipeline.Runner] implements it.
type Executor interface {
	Execute(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// ReportStore reads archived runs. [report.Store] and [report.MongoSink]
// implement it.
type ReportStore interface {
	Get(ctx context.Context, runID string) (*report.AnalysisResult, error)
}

// Config configures a Server. Runner is required.
type Config struct {
	Runner  Executor
	Reports ReportStore  // nil disables /reports/{id}
	Metrics http.Handler // nil disables /metrics
	Logger  *log.Logger
	Timeout time.Duration // per-request limit (default: 5m)
}

// Server is the HTTP front end.
type Server struct {
	runner  Executor
	reports ReportStore
	metrics http.Handler
	logger  *log.Logger
	timeout time.Duration
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		runner:  cfg.Runner,
		reports: cfg.Reports,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Post("/scan", s.handleScan)
		if s.reports != nil {
			r.Get("/reports/{id}", s.handleReport)
		}
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
