package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazealert/internal/api/alerts"
	"github.com/good-yellow-bee/blazealert/internal/api/failures"
	"github.com/good-yellow-bee/blazealert/internal/api/middleware"
	"github.com/good-yellow-bee/blazealert/pkg/config"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerIP)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ipLimiter))

		failureHandler := failures.NewHandler(s.detector)
		alertHandler := alerts.NewHandler(s.dispatcher)

		r.Route("/failures", func(r chi.Router) {
			r.Post("/", failureHandler.Report)
			r.Delete("/", failureHandler.ResetAll)
			r.Get("/settings", failureHandler.Settings)
		})

		r.Route("/sources/{source}", func(r chi.Router) {
			r.Get("/failures", failureHandler.Count)
			r.Delete("/failures", failureHandler.Reset)
		})

		r.Post("/alerts", alertHandler.Submit)
		r.Post("/email", alertHandler.SendEmail)

		r.Get("/status", s.handleStatus)
	})

	// Health endpoints (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}

// StatusResponse is a snapshot of the alerting pipeline.
type StatusResponse struct {
	Version          string `json:"version"`
	AlertingEnabled  bool   `json:"alerting_enabled"`
	PendingAlerts    int    `json:"pending_alerts"`
	FailuresInWindow int    `json:"failures_in_window"`
	TimeWindow       string `json:"time_window"`
}

// handleStatus reports build and pipeline state.
// GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings := s.detector.Settings()
	OK(w, StatusResponse{
		Version:          config.Version,
		AlertingEnabled:  s.dispatcher.Enabled(),
		PendingAlerts:    s.dispatcher.Pending(),
		FailuresInWindow: settings.FailuresInWindow,
		TimeWindow:       settings.TimeWindow.String(),
	})
}
