package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
	ErrBodyTooLarge   = errors.New("request body too large")
)

// APIError is the error type shared by the preview API and the storefront
// client. Code and Message are safe to show to callers; Err is not.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"` // offending input, validation errors only
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Internal reports whether the error is a server-side failure whose details
// must not reach the caller.
func (e *APIError) Internal() bool {
	return e.StatusCode >= http.StatusInternalServerError && e.Code == codeInternal
}

const codeInternal = "INTERNAL_ERROR"

// AsAPIError finds the APIError in err's chain. Anything else becomes an
// internal error wrapping err.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewInternalError(err)
}

// NewNotFoundError reports a missing storefront resource (404).
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError reports unusable input in field (400).
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Field:      field,
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewPayloadTooLargeError reports a request body above limit bytes (413).
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:       "PAYLOAD_TOO_LARGE",
		Message:    fmt.Sprintf("request body exceeds %d bytes", limit),
		Field:      "body",
		StatusCode: http.StatusRequestEntityTooLarge,
		Err:        ErrBodyTooLarge,
	}
}

// NewUnauthorizedError reports a rejected storefront session (401).
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError reports a failed call to service (502). The cause stays in Err.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    service + " request failed",
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRateLimitError reports throttling by service (429).
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    service + " rate limit exceeded, please retry later",
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}

// NewInternalError hides err behind a generic message (500).
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       codeInternal,
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
