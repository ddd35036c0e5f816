// Package errors defines the domain error taxonomy for the gremlin API.
// Every failure that crosses the HTTP boundary is expressed as a
// GremlinError carrying one of a closed set of codes, each with a fixed
// HTTP status mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies a kind of domain error.
type Code string

const (
	CodeValidation   Code = "VALIDATION"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInternal     Code = "INTERNAL"
)

// statusByCode is the deterministic code -> HTTP status mapping.
var statusByCode = map[Code]int{
	CodeValidation:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeConflict:     http.StatusConflict,
	CodeInternal:     http.StatusInternalServerError,
}

// GremlinError is the domain error type. Cause is an opaque diagnostic
// attachment for logging; callers must not branch on it.
type GremlinError struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a GremlinError with the given code and message.
func New(code Code, message string) *GremlinError {
	return &GremlinError{Code: code, Message: message}
}

// Error implements the error interface.
func (e *GremlinError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *GremlinError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code mapped to the error's code.
// Unknown codes map to 500.
func (e *GremlinError) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithCause attaches a diagnostic cause and returns the error.
func (e *GremlinError) WithCause(cause error) *GremlinError {
	e.Cause = cause
	return e
}

// Validation creates a VALIDATION error with an optional cause carrying
// the validator's detail.
func Validation(message string, cause error) *GremlinError {
	return &GremlinError{Code: CodeValidation, Message: message, Cause: cause}
}

// Unauthorized creates an UNAUTHORIZED error.
func Unauthorized(message string) *GremlinError {
	return &GremlinError{Code: CodeUnauthorized, Message: message}
}

// Forbidden creates a FORBIDDEN error.
func Forbidden(message string) *GremlinError {
	return &GremlinError{Code: CodeForbidden, Message: message}
}

// NotFound creates a NOT_FOUND error.
func NotFound(message string) *GremlinError {
	return &GremlinError{Code: CodeNotFound, Message: message}
}

// Conflict creates a CONFLICT error.
func Conflict(message string) *GremlinError {
	return &GremlinError{Code: CodeConflict, Message: message}
}

// Internal creates an INTERNAL error wrapping an underlying cause.
func Internal(message string, cause error) *GremlinError {
	return &GremlinError{Code: CodeInternal, Message: message, Cause: cause}
}

// FromError extracts a GremlinError from err's chain, if present.
func FromError(err error) (*GremlinError, bool) {
	var gerr *GremlinError
	if stderrors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

// Wrap normalizes any error into a GremlinError. Domain errors pass
// through untouched; foreign errors become INTERNAL with the original
// attached as the cause.
func Wrap(err error) *GremlinError {
	if gerr, ok := FromError(err); ok {
		return gerr
	}
	return Internal("An unexpected error occurred.", err)
}
