// Package errors provides custom error types for the ThreatCanvas SDK.
package errors

import (
	"errors"
	"fmt"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all SDK errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "model.Validate")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindInvalidModel
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimit
	KindTimeout
	KindNetwork
	KindStorage
	KindRender
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidModel:
		return "invalid_model"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindStorage:
		return "storage"
	case KindRender:
		return "render"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Validation Error
// =============================================================================

// ValidationError collects the individual problems found while validating a
// model. A model with any violation is rejected as a whole.
type ValidationError struct {
	// Model is the model name.
	Model string

	// Violations are the individual problems, one message each.
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Violations) {
	case 0:
		return fmt.Sprintf("model %q is invalid", e.Model)
	case 1:
		return fmt.Sprintf("model %q is invalid: %s", e.Model, e.Violations[0])
	default:
		return fmt.Sprintf("model %q is invalid: %s (and %d more)",
			e.Model, e.Violations[0], len(e.Violations)-1)
	}
}

// IsValidationError checks if err is a ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op or Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapWithMessage wraps an error with a message.
func WrapWithMessage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Message: message, Err: err}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if _, ok := IsValidationError(err); ok {
		return KindValidation
	}
	return KindUnknown
}

// IsInvalidModelError checks if the error is an invalid-model error.
func IsInvalidModelError(err error) bool {
	k := GetKind(err)
	return k == KindInvalidModel || k == KindValidation
}

// IsNotFoundError checks if the error is a not found error.
func IsNotFoundError(err error) bool {
	return GetKind(err) == KindNotFound
}

// IsNetworkError checks if the error is a network error.
func IsNetworkError(err error) bool {
	return GetKind(err) == KindNetwork
}

// IsTimeoutError checks if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return GetKind(err) == KindTimeout
}

// IsRetryable checks if the error is retryable. Model and validation errors
// never are: re-running the same declarative input cannot change the result.
func IsRetryable(err error) bool {
	switch GetKind(err) {
	case KindRateLimit, KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrEmptyModel is returned when processing a model with no elements.
	ErrEmptyModel = &Error{Kind: KindInvalidModel, Message: "model has no elements"}

	// ErrNotConnected is returned when a transport is not connected.
	ErrNotConnected = &Error{Kind: KindNetwork, Message: "not connected"}

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = &Error{Kind: KindTimeout, Message: "operation timed out"}

	// ErrRateLimited is returned when rate limited.
	ErrRateLimited = &Error{Kind: KindRateLimit, Message: "rate limited"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidInput, Message: "invalid configuration"}
)
