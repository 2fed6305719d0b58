package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleTelemetryHistory returns recent samples for a device, newest first.
func (s *Server) handleTelemetryHistory(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "telemetry history is disabled")
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	samples, err := s.telemetry.ListByDevice(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing telemetry failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read telemetry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"samples":   samples,
		"count":     len(samples),
	})
}

// handleCommandHistory returns recent command log entries for a device.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command log is disabled")
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	records, err := s.commands.ListByDevice(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing commands failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read command log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"commands":  records,
		"count":     len(records),
	})
}

// parseLimit reads ?limit=, falling back to the configured default.
// The repositories clamp the upper bound.
func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.historyLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}
