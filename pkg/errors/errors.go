// Package errors provides structured error types for pathmap.
//
// Errors carry a machine-readable [Code] so the CLI and the HTTP server can
// map them to exit messages and status codes without string matching.
//
// # Error Codes
//
//   - INVALID_*: input, option and configuration failures
//   - PROJECTION_FAILED: a path point lies outside the projection domain
//   - FETCH_FAILED: the tile mosaic for a plate could not be assembled
//   - NETWORK_ERROR, RATE_LIMITED, NOT_FOUND: tile server responses
//   - INTERNAL_ERROR: everything else
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "radius must be positive, got %d", r)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	err := errors.Wrap(errors.ErrCodeFetch, origErr, "plate %d", i)
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidColor  Code = "INVALID_COLOR"
	ErrCodeInvalidTrack  Code = "INVALID_TRACK"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeInvalidURL    Code = "INVALID_URL"

	// Pipeline errors
	ErrCodeProjection Code = "PROJECTION_FAILED"
	ErrCodeFetch      Code = "FETCH_FAILED"

	// Tile server errors
	ErrCodeNotFound    Code = "NOT_FOUND"
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message and its causes without code
// prefixes. For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Cause != nil {
		return e.Message + ": " + UserMessage(e.Cause)
	}
	return e.Message
}

// HTTPStatus maps the code of err to a response status for the server.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeInvalidColor,
		ErrCodeInvalidTrack, ErrCodeInvalidPath, ErrCodeInvalidURL, ErrCodeProjection:
		return http.StatusBadRequest
	case ErrCodeUnsupported:
		return http.StatusUnsupportedMediaType
	case ErrCodeFetch, ErrCodeNetwork, ErrCodeNotFound, ErrCodeRateLimited:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RateLimitedError is returned when a tile server answers 429.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
