// Package alerts exposes alert submission and notification endpoints.
package alerts

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/alert"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
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
	errCodeRateLimited      = "RATE_LIMITED"
	errCodeAlertingDisabled = "ALERTING_DISABLED"
	errCodeDeliveryFailed   = "DELIVERY_FAILED"
	errCodeInternalError    = "INTERNAL_ERROR"
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

// Handler handles alert submission and email endpoints.
type Handler struct {
	dispatcher *dispatch.Dispatcher
}

// NewHandler creates an alerts handler backed by the given dispatcher.
func NewHandler(d *dispatch.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// SubmitRequest is the body for submitting an alert.
type SubmitRequest struct {
	Type     string            `json:"type"`
	Severity string            `json:"severity"`
	Source   string            `json:"source"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
}

// SubmitResponse acknowledges a queued alert.
type SubmitResponse struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Queued   bool   `json:"queued"`
}

// EmailRequest is the body for sending an ad hoc email.
type EmailRequest struct {
	To      []string `json:"to,omitempty"` // defaults to configured recipients
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

// EmailResponse reports a delivered email.
type EmailResponse struct {
	MessageID string `json:"message_id"`
	SentAt    string `json:"sent_at"`
}

// Submit queues an alert for debounced delivery.
// POST /api/v1/alerts
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	typ, severity, err := validateSubmit(&req)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	if !h.dispatcher.Enabled() {
		jsonError(w, http.StatusConflict, errCodeAlertingDisabled, "alerting is disabled")
		return
	}

	a := alert.New(typ, severity, req.Source, req.Message, time.Now().UTC())
	if len(req.Context) > 0 {
		a = a.WithContext(req.Context)
	}
	h.dispatcher.Enqueue(a)

	jsonAccepted(w, SubmitResponse{
		Type:     string(typ),
		Severity: string(severity),
		Queued:   true,
	})
}

// SendEmail sends an ad hoc email synchronously.
// POST /api/v1/email
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if err := validateEmail(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	receipt, err := h.dispatcher.SendCustomEmail(r.Context(), dispatch.CustomEmail{
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	jsonOK(w, EmailResponse{
		MessageID: receipt.MessageID,
		SentAt:    receipt.SentAt.UTC().Format(time.RFC3339),
	})
}

// writeDispatchError maps dispatcher errors to HTTP responses.
func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrDisabled):
		jsonError(w, http.StatusConflict, errCodeAlertingDisabled, "alerting is disabled")
	case errors.Is(err, dispatch.ErrNoSender):
		jsonError(w, http.StatusConflict, errCodeAlertingDisabled, "no sender address configured")
	case errors.Is(err, dispatch.ErrRateLimited):
		jsonError(w, http.StatusTooManyRequests, errCodeRateLimited, "notification rate limit exceeded")
	default:
		var de *dispatch.DeliveryError
		if errors.As(err, &de) {
			jsonError(w, http.StatusBadGateway, errCodeDeliveryFailed, de.Error())
			return
		}
		log.Printf("send email failed: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
	}
}
