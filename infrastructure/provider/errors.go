// Package provider implements the captioning and embedding model clients.
package provider

import (
	"fmt"
	"net/http"
)

// Error wraps a model provider failure with the operation and HTTP status.
// It matches both its kind (meme.ErrCaption or meme.ErrEmbed) and its cause
// with errors.Is.
type Error struct {
	kind       error
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewError creates a provider Error.
func NewError(kind error, operation string, statusCode int, message string, cause error) *Error {
	return &Error{
		kind:       kind,
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.operation + ": " + e.message
	if e.statusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.statusCode)
	}
	if e.kind != nil {
		msg = e.kind.Error() + ": " + msg
	}
	if e.cause != nil && e.cause.Error() != e.message {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Operation returns the operation that failed.
func (e *Error) Operation() string { return e.operation }

// StatusCode returns the HTTP status code, or 0 when none was received.
func (e *Error) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *Error) Message() string { return e.message }

// IsRateLimited reports whether the provider rejected the call for rate limiting.
func (e *Error) IsRateLimited() bool {
	return e.statusCode == http.StatusTooManyRequests
}
