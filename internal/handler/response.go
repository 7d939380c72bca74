package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// WHY HELPERS?
// Without helpers, every handler repeats the same boilerplate:
//   w.Header().Set("Content-Type", "application/json")
//   w.WriteHeader(statusCode)
//   json.NewEncoder(w).Encode(data)
//
// With helpers, handlers are cleaner and more consistent:
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "event not found with id 12"}
//
// This makes it easy for the frontend to parse errors: it always knows
// what fields to expect, regardless of whether it's a 400, 404, or 503.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ourworld/internal/apperror"
)

// MaxBodyBytes caps every JSON request body. Uploads travel base64-encoded
// inside the body, so this is also the upload size limit.
const MaxBodyBytes = 15 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
// Having a struct ensures consistent JSON shape across all error responses.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// SuccessResponse is the body of operations that return no record.
type SuccessResponse struct {
	Success bool `json:"success"`
}

var success = SuccessResponse{Success: true}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
// Any header changes after that are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// This is where domain errors (from the service layer) get translated to HTTP.
// The service layer should not know about HTTP status codes.
//
//	ErrValidation       → 400 validation_error
//	ErrInvalidAsset     → 400 invalid_asset
//	ErrNotAuthenticated → 401 not_authenticated
//	ErrNotFound         → 404 not_found
//	ErrUnavailable      → 503 unavailable (nothing was changed, retry later)
//
// errors.Is() UNWRAPPING:
// errors.Is(err, target) walks the entire error chain (via Unwrap())
// to see if `target` appears anywhere:
//
//	service returns: fmt.Errorf("creating event: %w", apperror.Unavailable(...))
//	which wraps:     AppError{Err: ErrUnavailable, Message: "..."}
//	errors.Is walks: outer error → AppError → ErrUnavailable ✓ match!
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	// errors.As() is like errors.Is() but extracts the error value.
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrInvalidAsset):
			status = http.StatusBadRequest // 400
			errorType = "invalid_asset"
		case errors.Is(err, apperror.ErrNotAuthenticated):
			status = http.StatusUnauthorized // 401
			errorType = "not_authenticated"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable // 503
			errorType = "unavailable"
			w.Header().Set("Retry-After", "1")
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error: return a generic 500.
	// NEVER expose internal error details to the client: the raw message
	// may contain file paths.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads the request body into v.
//
// An empty body decodes as {} (every field takes its zero value), matching
// what the browser client sends for "create with defaults". Bodies over
// MaxBodyBytes are rejected with 413.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "payload_too_large",
			Message: "Payload too large",
		})
		return false
	}
	writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
	return false
}

// idParam parses the {id} URL parameter. Non-numeric ids are a 400.
func idParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, apperror.ValidationFailed(name, "Invalid id")
	}
	return id, nil
}
