package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// With helpers, handlers stay short and consistent:
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// ERROR FORMAT:
// Every error response with a body has the same shape:
//   {"error": "validation_error", "message": "title is required", "fields": {"title": "title is required"}}
//
// The one exception is 404: a missing post is answered with an EMPTY body.
// The status code already says everything the client needs to know.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/posts-api/internal/apperror"
)

// ErrorResponse is the standard error format returned by the API.
type ErrorResponse struct {
	Error   string            `json:"error"`            // Machine-readable error type (e.g., "conflict")
	Message string            `json:"message"`          // Human-readable description
	Fields  map[string]string `json:"fields,omitempty"` // Per-field validation messages
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE the body is written.
// Once Encode calls w.Write(), any later header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already on the wire, all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeBadRequest answers 400 for input that never reached the service
// (malformed JSON, a non-numeric id, an unparsable If-Match header).
func writeBadRequest(w http.ResponseWriter, field, message string) {
	resp := ErrorResponse{
		Error:   "bad_request",
		Message: message,
	}
	if field != "" {
		resp.Fields = map[string]string{field: message}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrNotFound   → 404, empty body
//	apperror.ErrValidation → 400, message + fields
//	apperror.ErrConflict   → 409, message
//	anything else          → 500, generic message
//
// errors.Is() walks the whole chain, so a service error such as
// fmt.Errorf("updating post: %w", apperror.StaleVersion(...)) still maps to 409.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: appErr.Message,
				Fields:  appErr.Fields,
			})
			return
		case errors.Is(err, apperror.ErrConflict):
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:   "conflict",
				Message: appErr.Message,
			})
			return
		}
	}

	// NEVER expose internal error details to the client.
	// The raw message might contain SQL or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
