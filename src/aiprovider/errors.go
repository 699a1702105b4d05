package aiprovider

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Error kinds. Every transport failure unwraps to exactly one of these.
var (
	ErrInvalidRequest     = errors.New("the assistant rejected the request as invalid")
	ErrUnauthorized       = errors.New("not authorized to use the assistant")
	ErrForbidden          = errors.New("access to the assistant is forbidden")
	ErrBusy               = errors.New("the assistant is busy, please retry shortly")
	ErrServiceUnavailable = errors.New("the assistant service is unavailable")
	ErrService            = errors.New("the assistant service failed")
	ErrAPI                = errors.New("unexpected response from the assistant service")
	ErrUnreachable        = errors.New("the assistant service could not be reached")
	ErrRequest            = errors.New("failed to build the assistant request")

	// ErrNotConfigured is returned when no service URL is configured.
	ErrNotConfigured = errors.New("assistant service URL is not configured")
	// ErrStreamClosed is returned when a progress stream ends without a result.
	ErrStreamClosed = errors.New("stream closed before completion")
	// ErrFileTooLarge is returned by uploads over the size cap.
	ErrFileTooLarge = errors.New("file exceeds upload size limit")
)

// ErrorResponse is the error body returned by the service.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// APIError is a non-2xx response from the chat service.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	RequestID  string
	RetryAfter string
}

// Kind maps the status code onto one of the error kinds.
func (e *APIError) Kind() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return ErrInvalidRequest
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrBusy
	case e.StatusCode == http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	case e.StatusCode >= 500:
		return ErrService
	default:
		return ErrAPI
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%v (status %d)", e.Kind(), e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the error kind so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	return e.Kind()
}

// IsRetryable returns true if the error is retryable.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// UnreachableError means the request was sent but no response came back.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnreachable, e.Err)
}

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

func (e *UnreachableError) Unwrap() error { return e.Err }

// RequestError means the request could not be built or sent at all.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrRequest, e.Op, e.Err)
}

func (e *RequestError) Is(target error) bool { return target == ErrRequest }

func (e *RequestError) Unwrap() error { return e.Err }

// StreamError is an error event reported by the service mid-stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return e.Message }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return errors.Is(err, ErrUnreachable)
}

// ErrorHandler provides centralized error handling with logging.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger: logger.With("component", "error_handler"),
	}
}

// Handle logs err according to its type and returns it unchanged.
func (eh *ErrorHandler) Handle(err error, operation string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}

	logAttrs := []any{"operation", operation, "error", err.Error()}
	for _, attr := range attrs {
		logAttrs = append(logAttrs, attr.Key, attr.Value)
	}

	var (
		apiErr    *APIError
		unreach   *UnreachableError
		reqErr    *RequestError
		streamErr *StreamError
	)
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.IsRateLimit():
			eh.logger.Warn("rate limited", logAttrs...)
		case apiErr.IsAuthError():
			eh.logger.Error("authentication failed", logAttrs...)
		case apiErr.IsRetryable():
			eh.logger.Warn("retryable API error", logAttrs...)
		default:
			eh.logger.Error("API error", logAttrs...)
		}
	case errors.As(err, &unreach):
		eh.logger.Error("service unreachable", append(logAttrs, "url", unreach.URL)...)
	case errors.As(err, &reqErr):
		eh.logger.Error("request construction failed", logAttrs...)
	case errors.As(err, &streamErr):
		eh.logger.Warn("stream reported an error", logAttrs...)
	default:
		eh.logger.Error("error occurred", logAttrs...)
	}

	return err
}

// UserMessage renders err as text fit for showing inside the conversation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	msg := err.Error()
	return strings.TrimSpace(msg)
}
