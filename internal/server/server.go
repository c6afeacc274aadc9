package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/history"
	"netrunner/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 20 * time.Second

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout = 10 * time.Second

	// RefreshRateLimit is the per-IP limit on manual refreshes, per minute
	RefreshRateLimit = 6
)

// Store is the read side of the history.
type Store interface {
	Ping(ctx context.Context) error
	GetDeployment(ctx context.Context, id int64) (*history.Deployment, error)
	ListDeployments(ctx context.Context, filter history.DeploymentFilter) ([]history.Deployment, error)
	GetComparison(ctx context.Context, id int64) (*history.Comparison, error)
	ListComparisons(ctx context.Context) ([]history.Comparison, error)
	ListWorkflowRuns(ctx context.Context, filter history.WorkflowRunFilter) ([]history.WorkflowRunRecord, error)
}

// RunRefresher re-reads one run from GitHub and stores its state.
type RunRefresher interface {
	RefreshRun(ctx context.Context, runID int64) (*actions.Run, error)
}

// Options configures a Server.
type Options struct {
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64
	Metrics   *metrics.Metrics
	Refresher RunRefresher
	Version   string
}

// Server represents the HTTP server
type Server struct {
	Store     Store
	Refresher RunRefresher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	RateLimit float64
	Version   string
	started   time.Time
}

// NewServer creates a new server instance
func NewServer(store Store, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Store:     store,
		Refresher: opts.Refresher,
		Metrics:   opts.Metrics,
		Logger:    logger,
		RateLimit: opts.RateLimit,
		Version:   opts.Version,
		started:   time.Now(),
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(s.instrument)

	if s.RateLimit > 0 {
		r.Use(NewRateLimitMiddleware(s.RateLimit, s.Logger))
	}

	// Routes
	r.Get("/health", s.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/deployments", s.HandleListDeployments)
		r.Get("/deployments/{id}", s.HandleGetDeployment)
		r.Get("/comparisons", s.HandleListComparisons)
		r.Get("/comparisons/{id}", s.HandleGetComparison)
		r.Get("/runs", s.HandleListRuns)
		if s.Refresher != nil {
			r.With(NewRefreshRateLimitMiddleware(RefreshRateLimit, s.Logger)).
				Post("/runs/{runID}/refresh", s.HandleRefreshRun)
		}
	})

	return r
}

// instrument logs every request and records it in the metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			s.Metrics.ObserveRequest(r.Method, route, status, time.Since(start))
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start serves on host:port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
