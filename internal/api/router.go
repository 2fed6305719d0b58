package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Paths served outside the /api/v1 device routes.
const (
	healthPath  = "/api/v1/health"
	metricsPath = "/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.gatherer != nil {
		r.Handle(metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices/{id}", func(r chi.Router) {
			// Operator commands
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/power-limit", s.handlePowerLimit)
			r.Post("/peak-shaving", s.handlePeakShaving)
			r.Post("/export-limit", s.handleExportLimit)
			r.Post("/tariff", s.handleTariff)

			// Reads
			r.Get("/control", s.handleGetControl)
			r.Get("/telemetry", s.handleTelemetryHistory)
			r.Get("/commands", s.handleCommandHistory)
		})
	})

	return r
}

// handleHealth reports service status and broker connectivity.
// It answers 200 even when the broker is down; mqtt_connected says so.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := s.transport != nil && s.transport.IsConnected()
	status := "ok"
	if !connected {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"mqtt_connected": connected,
	})
}
