// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/nisab/internal/api/handler/api"
	"github.com/newthinker/nisab/internal/api/job"
	"github.com/newthinker/nisab/internal/api/middleware"
	"github.com/newthinker/nisab/internal/metrics"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/repository"
	"github.com/newthinker/nisab/internal/syncer"
)

// Server represents the HTTP server for the pricing service.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	sync       *handler.SyncHandler
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
	MaxJobs     int
	JobTTL      time.Duration
}

// Dependencies are the components the routes serve.
type Dependencies struct {
	Repository *repository.Repository
	Registry   *provider.Registry
	Syncer     *syncer.Syncer
	// Metrics is optional; nil disables /metrics and HTTP instrumentation.
	Metrics *metrics.Registry
	// Health adds fields to the health response, e.g. scheduler stats.
	Health func() map[string]any
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Repository == nil || deps.Registry == nil || deps.Syncer == nil {
		return nil, fmt.Errorf("repository, registry and syncer are required")
	}

	mux := http.NewServeMux()

	var h http.Handler = mux
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}
	h = metrics.LoggingMiddleware(logger)(h)

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	s.setupRoutes(cfg, deps)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	var gauge handler.JobGauge
	if deps.Metrics != nil {
		gauge = deps.Metrics
	}

	pricing := handler.NewPricingHandler(deps.Repository)
	status := handler.NewStatusHandler(deps.Registry, deps.Syncer)
	maxJobs, ttl := cfg.MaxJobs, cfg.JobTTL
	if maxJobs <= 0 {
		maxJobs = 100
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.sync = handler.NewSyncHandler(job.NewStore(maxJobs, ttl), deps.Syncer, gauge, s.logger)
	auth := middleware.APIKeyAuth(cfg.APIKey)

	s.mux.HandleFunc("GET /api/health", s.handleHealth(deps.Health))

	s.mux.HandleFunc("GET /api/v1/pricing", pricing.Get)
	s.mux.HandleFunc("GET /api/v1/cadence", pricing.Cadence)
	s.mux.HandleFunc("GET /api/v1/providers", status.Providers)
	s.mux.HandleFunc("GET /api/v1/coverage", status.Coverage)

	s.mux.Handle("POST /api/v1/sync", auth(http.HandlerFunc(s.sync.Create)))
	s.mux.Handle("GET /api/v1/sync/runs", auth(http.HandlerFunc(s.sync.Runs)))
	s.mux.Handle("GET /api/v1/sync/{id}", auth(http.HandlerFunc(s.sync.GetStatus)))

	if deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels running sync jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.sync.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(extra func() map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if extra != nil {
			for k, v := range extra() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	}
}
