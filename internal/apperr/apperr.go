// Package apperr holds the error taxonomy shared by the evaluation subsystem.
//
// Errors are plain sentinels wrapped with context via fmt.Errorf("%w: ...") and
// matched with errors.Is. UpstreamFailure is used inside fallback chains only and
// never reaches a caller.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrStoreFailure    = errors.New("store failure")
)

// InvalidInput wraps ErrInvalidInput with a formatted message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Upstream wraps an error from a remote or parse step.
func Upstream(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUpstreamFailure, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamFailure, op, err)
}

// Store wraps an error returned by the session store.
func Store(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrInvalidFormat):
		return "INVALID_FORMAT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidDomain):
		return "INVALID_DOMAIN"
	case errors.Is(err, ErrStoreFailure):
		return "STORE_FAILURE"
	case errors.Is(err, ErrUpstreamFailure):
		return "UPSTREAM_FAILURE"
	default:
		return "INTERNAL_ERROR"
	}
}

// StatusCode maps err onto an HTTP status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidDomain):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
