package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/circuitbreaker"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Count     int       `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	writeEnvelope(w, http.StatusOK, JSONResponse{
		Success:   true,
		Data:      items,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1", Count: len(items)},
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, apiErr APIError) {
	writeEnvelope(w, status, JSONResponse{
		Error:     &apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// kindStatus maps domain error kinds to HTTP status codes. Kinds are checked
// in order; the first match wins.
var kindStatus = []struct {
	kind   error
	status int
}{
	{shared.ErrNotFound, http.StatusNotFound},
	{shared.ErrValidation, http.StatusBadRequest},
	{shared.ErrMissingReason, http.StatusBadRequest},
	{shared.ErrAlreadyExists, http.StatusConflict},
	{shared.ErrConcurrentModification, http.StatusConflict},
	{shared.ErrSchedulingConflict, http.StatusConflict},
	{shared.ErrInvalidTransition, http.StatusUnprocessableEntity},
	{shared.ErrIncompleteSubmission, http.StatusUnprocessableEntity},
	{shared.ErrDocumentsIncomplete, http.StatusUnprocessableEntity},
	{shared.ErrEligibilityNotMet, http.StatusUnprocessableEntity},
	{shared.ErrInvalidState, http.StatusUnprocessableEntity},
	{shared.ErrNoApprovedHours, http.StatusUnprocessableEntity},
	{shared.ErrNoSlotsAvailable, http.StatusUnprocessableEntity},
	{shared.ErrInsufficientFunds, http.StatusPaymentRequired},
	{shared.ErrServiceUnavailable, http.StatusServiceUnavailable},
}

// statusFor returns the status code and error code for err.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "service_unavailable"
	}
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.status, shared.KindName(err)
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError writes err as a JSON error. Unknown errors are logged and
// reported without their message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	apiErr := APIError{Code: code, Message: err.Error()}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		apiErr.Message = "request validation failed"
		apiErr.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			apiErr.Fields[fe.Field()] = fe.Tag()
		}
	}

	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error("request failed", logger.Err(err), logger.Int("status", status))
		if status == http.StatusInternalServerError {
			apiErr.Message = "an unexpected error occurred"
		}
	}
	writeJSONError(w, r, status, apiErr)
}
