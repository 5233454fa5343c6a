// Package response writes JSON, HTML and RFC 7807 problem responses.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
)

// ErrorDetail represents a single error detail in RFC 7807 Problem Details
type ErrorDetail struct {
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details error response
type ProblemDetails struct {
	Type     string        `json:"type,omitempty"`
	Title    string        `json:"title"`
	Status   int           `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, statusCode int, title string, detail string) {
	problem := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: statusCode,
		Detail: detail,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondUnauthorized writes a 401 Unauthorized error response
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondInternalServerError writes a 500 Internal Server Error response
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// RespondBadGateway writes a 502 Bad Gateway error response
func RespondBadGateway(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadGateway, "Bad Gateway", detail)
}

// RespondGatewayTimeout writes a 504 Gateway Timeout error response
func RespondGatewayTimeout(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusGatewayTimeout, "Gateway Timeout", detail)
}

// RespondServiceError maps an error returned by a service to its HTTP status.
// Validation -> 400, not found -> 404, timeout -> 504, upstream and malformed model output -> 502.
// Anything else is logged and reported as 500 without leaking the cause.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		RespondBadRequest(w, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		RespondNotFound(w, err.Error())
	case errors.Is(err, apperrors.ErrTimeout):
		slog.WarnContext(r.Context(), "request timed out waiting on vendor", "error", err)
		RespondGatewayTimeout(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(r.Context(), "request ran out of time", "error", err)
		RespondGatewayTimeout(w, "The request did not finish within the server time limit")
	case errors.Is(err, apperrors.ErrUpstream), errors.Is(err, apperrors.ErrMalformedOutput):
		slog.ErrorContext(r.Context(), "vendor call failed", "error", err)
		RespondBadGateway(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		RespondInternalServerError(w, "An unexpected error occurred")
	}
}

// RespondJSON writes a JSON response directly without wrapping
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// RespondHTML writes an already rendered HTML document or fragment.
func RespondHTML(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Failed to write HTML response", "error", err)
	}
}
