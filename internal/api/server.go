// Package api provides the HTTP control API for starting, inspecting and
// cancelling workflow runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

// RunManager is the run lifecycle the API drives.
type RunManager interface {
	StartFrom(ctx context.Context, path string, ws *core.WorkflowSpec) (string, error)
	Plan(ws *core.WorkflowSpec) (*core.ExecutionPlan, error)
	Cancel(runID string) error
	Get(runID string) (*core.WorkflowResult, error)
	List() []core.RunSummary
}

// Server provides HTTP REST API endpoints for workflow runs.
type Server struct {
	router         chi.Router
	runs           RunManager
	loader         *spec.Loader
	watcher        *service.SpecWatcher
	eventBus       *events.EventBus
	metrics        http.Handler
	metricsPath    string
	corsOrigins    []string
	requestTimeout time.Duration
	logger         *logging.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSpecWatcher enables starting and planning workflows by name.
func WithSpecWatcher(w *service.SpecWatcher) ServerOption {
	return func(s *Server) {
		s.watcher = w
	}
}

// WithEventBus enables the run event stream.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithMetricsHandler serves h at path.
func WithMetricsHandler(path string, h http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

// WithCORSOrigins sets the origins allowed to call the API. Empty allows any.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithRequestTimeout bounds every non-streaming request.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// NewServer creates a new API server. loader parses workflow documents
// posted in request bodies.
func NewServer(runs RunManager, loader *spec.Loader, opts ...ServerOption) *Server {
	s := &Server{
		runs:           runs,
		loader:         loader,
		requestTimeout: 60 * time.Second,
		logger:         logging.NewNop(),
	}
	if s.loader == nil {
		s.loader = spec.NewLoader(spec.DefaultDefaults())
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Event streams stay open for the life of a run.
		r.Get("/runs/{runID}/events", s.handleRunEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Get("/runs", s.handleListRuns)
			r.Post("/runs", s.handleStartRun)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Post("/runs/{runID}/cancel", s.handleCancelRun)
			r.Post("/plan", s.handlePlan)
			r.Get("/workflows", s.handleListWorkflows)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
