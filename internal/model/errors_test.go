package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err:  &APIError{Code: "TEST_ERROR", Message: "something went wrong"},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		code     string
		status   int
		sentinel error
		internal bool
	}{
		{"not found", NewNotFoundError("wishlist"), "NOT_FOUND", 404, ErrNotFound, false},
		{"validation", NewValidationError("body", "invalid JSON"), "VALIDATION_ERROR", 400, ErrInvalidRequest, false},
		{"too large", NewPayloadTooLargeError(1 << 20), "PAYLOAD_TOO_LARGE", 413, ErrBodyTooLarge, false},
		{"unauthorized", NewUnauthorizedError("session expired"), "UNAUTHORIZED", 401, ErrUnauthorized, false},
		{"upstream", NewUpstreamError("storefront", errors.New("boom")), "UPSTREAM_ERROR", 502, ErrUpstreamError, false},
		{"rate limited", NewRateLimitError("storefront"), "RATE_LIMITED", 429, ErrRateLimited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.status)
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("error should wrap %v", tt.sentinel)
			}
			if tt.err.Internal() != tt.internal {
				t.Errorf("Internal() = %v, want %v", tt.err.Internal(), tt.internal)
			}
		})
	}
}

func TestValidationErrorField(t *testing.T) {
	err := NewValidationError("kind", "unknown event bogus")
	if err.Field != "kind" {
		t.Errorf("Field = %q, want kind", err.Field)
	}
	if err.Message != "invalid kind: unknown event bogus" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestAsAPIError(t *testing.T) {
	wrapped := fmt.Errorf("fetching orders page 2: %w", NewUnauthorizedError("session expired"))
	if got := AsAPIError(wrapped); got.StatusCode != 401 {
		t.Errorf("StatusCode = %d, want 401", got.StatusCode)
	}

	cause := errors.New("nil document")
	got := AsAPIError(cause)
	if !got.Internal() || got.StatusCode != 500 {
		t.Errorf("plain error = %+v, want internal 500", got)
	}
	if got.Message != "an internal error occurred" {
		t.Errorf("Message = %q, should not leak details", got.Message)
	}
	if !errors.Is(got, cause) {
		t.Error("error should wrap cause")
	}
}
