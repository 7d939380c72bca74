// Package apperror defines the error taxonomy shared by the store, the
// upload layer, the services and the HTTP handlers.
//
// Every domain error is an *AppError wrapping one of the sentinel values
// below. Callers classify with errors.Is(err, apperror.ErrNotFound) and the
// handler layer maps the sentinel to an HTTP status.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("Validation Error")
	ErrInvalidAsset     = errors.New("invalid asset")
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnavailable marks a transient failure (the store file could not be
	// written). The operation had no effect and may be retried.
	ErrUnavailable = errors.New("temporarily unavailable")

	// ErrStartup is fatal: the process must not start.
	ErrStartup = errors.New("startup failure")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource string, id int) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %d", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidAsset reports an upload that was rejected before anything was
// written to the upload directory.
func InvalidAsset(field, message string) *AppError {
	return &AppError{
		Err:     ErrInvalidAsset,
		Message: message,
		Field:   field,
	}
}

// NotAuthenticated is returned for missing, expired or revoked sessions and
// for a wrong shared password. HTTP handlers map this to 401.
func NotAuthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrNotAuthenticated,
		Message: message,
	}
}

// Unavailable wraps a write failure that left the store untouched.
// HTTP handlers map this to 503 so clients can retry.
func Unavailable(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// Startup wraps a fatal configuration or storage error found at boot.
func Startup(message string, cause error) *AppError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &AppError{
		Err:     ErrStartup,
		Message: message,
		Cause:   cause,
	}
}
