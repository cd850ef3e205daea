package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/persistence"
)

// Base API errors as sentinels.
var (
	// ErrAuthentication indicates authentication failure.
	ErrAuthentication = errors.New("authentication failed")

	// ErrServer indicates the server could not complete a request.
	ErrServer = errors.New("server error")
)

// APIError is an error with a status code and a message safe to show clients.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates a new APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error { return e.cause }

// Code returns the HTTP status code.
func (e *APIError) Code() int { return e.code }

// Message returns the client-facing message.
func (e *APIError) Message() string { return e.message }

// AuthenticationError represents an authentication failure.
type AuthenticationError struct {
	message string
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{message: message}
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.message)
}

// Unwrap returns the base authentication error for errors.Is compatibility.
func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// ServerError represents a server-side error with a fixed status.
type ServerError struct {
	statusCode int
	message    string
}

// NewServerError creates a new ServerError.
func NewServerError(statusCode int, message string) *ServerError {
	return &ServerError{statusCode: statusCode, message: message}
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.statusCode, e.message)
}

// Unwrap returns the base server error for errors.Is compatibility.
func (e *ServerError) Unwrap() error { return ErrServer }

// StatusCode returns the HTTP status code.
func (e *ServerError) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *ServerError) Message() string { return e.message }

// Client-facing messages for domain errors.
const (
	MessageInvalidImage = "Only image files are allowed."
	MessageEmptyQuery   = "Query cannot be empty."
	MessageNotFound     = "Meme not found."
	MessageCaption      = "Could not describe the image."
	MessageEmbed        = "Could not embed the text."
	MessageInternal     = "Internal server error."
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps an error to its HTTP status and client-facing message.
func StatusFor(err error) (int, string) {
	var apiErr *APIError
	var serverErr *ServerError
	var authErr *AuthenticationError

	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code(), apiErr.Message()
	case errors.As(err, &serverErr):
		return serverErr.StatusCode(), serverErr.Message()
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, authErr.Error()
	case errors.Is(err, meme.ErrInvalidImage):
		return http.StatusBadRequest, MessageInvalidImage
	case errors.Is(err, meme.ErrInvalidQuery):
		return http.StatusBadRequest, MessageEmptyQuery
	case errors.Is(err, meme.ErrInvalidIdentifier):
		return http.StatusBadRequest, "Invalid filename."
	case errors.Is(err, persistence.ErrUploadNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, MessageNotFound
	case errors.Is(err, meme.ErrCaption):
		return http.StatusBadGateway, MessageCaption
	case errors.Is(err, meme.ErrEmbed):
		return http.StatusBadGateway, MessageEmbed
	case errors.Is(err, meme.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "Database not found. Please index your memes first."
	default:
		return http.StatusInternalServerError, MessageInternal
	}
}

// WriteError writes a JSON error response. Server errors are logged at
// error level, client errors at warn.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, detail := StatusFor(err)
	requestID := middleware.GetReqID(r.Context())

	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "request error",
			"request_id", requestID,
			"status", status,
			"error", err,
			"path", r.URL.Path,
		)
	}

	WriteJSON(w, status, ErrorResponse{Detail: detail, RequestID: requestID})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
