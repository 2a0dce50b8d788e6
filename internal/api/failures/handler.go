// Package failures exposes the failure tracking endpoints.
package failures

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazealert/internal/detector"
)

// Response helpers (local to avoid import cycle)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Handler handles failure tracking endpoints.
type Handler struct {
	detector *detector.Detector
}

// NewHandler creates a failures handler backed by the given detector.
func NewHandler(d *detector.Detector) *Handler {
	return &Handler{detector: d}
}

// ReportRequest is the body for reporting a failure.
type ReportRequest struct {
	Source     string `json:"source"`
	Error      string `json:"error,omitempty"`
	OccurredAt string `json:"occurred_at,omitempty"` // RFC3339; defaults to now
}

// ReportResponse is returned after recording a failure.
type ReportResponse struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// CountResponse reports the failure count for a source.
type CountResponse struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// SettingsResponse exposes the active detector settings.
type SettingsResponse struct {
	FailuresInWindow int    `json:"failures_in_window"`
	TimeWindow       string `json:"time_window"`
}

// Report records a failure for a source.
// POST /api/v1/failures
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if err := validateReport(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "occurred_at must be RFC3339")
			return
		}
		occurredAt = t
	}

	h.detector.TrackFailure(req.Source, occurredAt, req.Error)

	jsonAccepted(w, ReportResponse{
		Source: req.Source,
		Count:  h.detector.Count(req.Source),
	})
}

// Count returns the current failure count for a source.
// GET /api/v1/sources/{source}/failures
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if source == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "source is required")
		return
	}

	jsonOK(w, CountResponse{
		Source: source,
		Count:  h.detector.Count(source),
	})
}

// Reset clears the failure history for a source.
// DELETE /api/v1/sources/{source}/failures
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if source == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "source is required")
		return
	}

	h.detector.Reset(source)
	jsonNoContent(w)
}

// ResetAll clears the failure history for every source.
// DELETE /api/v1/failures
func (h *Handler) ResetAll(w http.ResponseWriter, r *http.Request) {
	h.detector.ResetAll()
	jsonNoContent(w)
}

// Settings returns the active detection thresholds.
// GET /api/v1/failures/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	s := h.detector.Settings()
	jsonOK(w, SettingsResponse{
		FailuresInWindow: s.FailuresInWindow,
		TimeWindow:       s.TimeWindow.String(),
	})
}
