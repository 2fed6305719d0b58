package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gridcontrol/internal/command"
	"github.com/nerrad567/gridcontrol/internal/control"
)

// limitRequest is the body of power-limit and export-limit.
type limitRequest struct {
	Limit *float64 `json:"limit"`
}

// peakShavingRequest is the body of peak-shaving. Threshold may be omitted
// to keep the stored value.
type peakShavingRequest struct {
	Enabled   *bool    `json:"enabled"`
	Threshold *float64 `json:"threshold"`
}

// tariffRequest is the body of tariff.
type tariffRequest struct {
	Schedule json.RawMessage `json:"schedule"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Start(r.Context(), chi.URLParam(r, "id"))
	s.writeResult(w, res, err)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Stop(r.Context(), chi.URLParam(r, "id"))
	s.writeResult(w, res, err)
}

func (s *Server) handlePowerLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Limit == nil {
		writeBadRequest(w, "limit is required")
		return
	}

	res, err := s.controller.SetPowerLimit(r.Context(), chi.URLParam(r, "id"), *req.Limit)
	s.writeResult(w, res, err)
}

func (s *Server) handlePeakShaving(w http.ResponseWriter, r *http.Request) {
	var req peakShavingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	res, err := s.controller.SetPeakShaving(r.Context(), chi.URLParam(r, "id"), *req.Enabled, req.Threshold)
	s.writeResult(w, res, err)
}

func (s *Server) handleExportLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Limit == nil {
		writeBadRequest(w, "limit is required")
		return
	}

	res, err := s.controller.SetExportLimit(r.Context(), chi.URLParam(r, "id"), *req.Limit)
	s.writeResult(w, res, err)
}

func (s *Server) handleTariff(w http.ResponseWriter, r *http.Request) {
	var req tariffRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.controller.SetTariff(r.Context(), chi.URLParam(r, "id"), req.Schedule)
	s.writeResult(w, res, err)
}

// handleGetControl returns the peak-shaving configuration of a device.
func (s *Server) handleGetControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, ok := s.store.Get(id)
	if !ok {
		writeNotFound(w, "no control configuration for device")
		return
	}

	resp := map[string]any{
		"device_id":            cfg.DeviceID,
		"peak_shaving_enabled": cfg.PeakShavingEnabled,
		"threshold_kw":         cfg.ThresholdKW,
	}
	if limit, ok := s.store.ExportLimit(id); ok {
		resp["export_limit_kw"] = limit
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeResult maps an operator command outcome onto a status code.
func (s *Server) writeResult(w http.ResponseWriter, res control.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, res)
	case errors.Is(err, command.ErrTransportUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, res)
	default:
		s.logger.Error("operator command failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, control.Result{Success: false, Message: "internal error"})
	}
}

// isValidationError reports whether err is the caller's fault.
func isValidationError(err error) bool {
	for _, target := range []error{
		control.ErrInvalidDeviceID,
		control.ErrInvalidThreshold,
		control.ErrInvalidLimit,
		control.ErrInvalidSchedule,
		command.ErrInvalidDeviceID,
		command.ErrUnknownKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
