package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "op and message",
			err:      &Error{Op: "model.Validate", Message: "duplicate element"},
			expected: "model.Validate: duplicate element",
		},
		{
			name:     "op message and wrapped",
			err:      &Error{Op: "history.Open", Message: "open database", Err: errors.New("disk full")},
			expected: "history.Open: open database: disk full",
		},
		{
			name:     "message only",
			err:      &Error{Message: "boom"},
			expected: "boom",
		},
		{
			name:     "message and wrapped",
			err:      &Error{Message: "render failed", Err: errors.New("bad shape")},
			expected: "render failed: bad shape",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestE(t *testing.T) {
	base := errors.New("underlying")
	err := E(KindValidation, "model.Validate", "bad dataflow", base)

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("E() did not produce *Error")
	}
	if e.Kind != KindValidation {
		t.Errorf("Kind = %v, want KindValidation", e.Kind)
	}
	if e.Op != "model.Validate" {
		t.Errorf("Op = %q", e.Op)
	}
	if e.Message != "bad dataflow" {
		t.Errorf("Message = %q", e.Message)
	}
	if !errors.Is(err, err) {
		t.Error("error should match itself")
	}
	if errors.Unwrap(e) != base {
		t.Error("Unwrap should return the underlying error")
	}
}

func TestGetKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"sdk error", E(KindNetwork, "push", "dial failed"), KindNetwork},
		{"wrapped sdk error", fmt.Errorf("outer: %w", E(KindTimeout, "op", "slow")), KindTimeout},
		{"validation error", &ValidationError{Model: "m"}, KindValidation},
		{"plain error", errors.New("plain"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetKind(tt.err); got != tt.expected {
				t.Errorf("GetKind() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ValidationError
		expected string
	}{
		{
			name:     "no violations",
			err:      &ValidationError{Model: "m"},
			expected: `model "m" is invalid`,
		},
		{
			name:     "one violation",
			err:      &ValidationError{Model: "m", Violations: []string{"dangling endpoint"}},
			expected: `model "m" is invalid: dangling endpoint`,
		},
		{
			name: "several violations",
			err: &ValidationError{Model: "m", Violations: []string{
				"dangling endpoint", "unknown data", "port mismatch",
			}},
			expected: `model "m" is invalid: dangling endpoint (and 2 more)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rate limit", ErrRateLimited, true},
		{"network", ErrNotConnected, true},
		{"timeout", ErrTimeout, true},
		{"invalid model", ErrEmptyModel, false},
		{"validation", &ValidationError{Model: "m"}, false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsInvalidModelError(t *testing.T) {
	if !IsInvalidModelError(ErrEmptyModel) {
		t.Error("ErrEmptyModel should be an invalid-model error")
	}
	if !IsInvalidModelError(&ValidationError{Model: "m"}) {
		t.Error("ValidationError should be an invalid-model error")
	}
	if IsInvalidModelError(ErrTimeout) {
		t.Error("timeout should not be an invalid-model error")
	}
}
