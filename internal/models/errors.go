package models

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing and user-visible behavior.
// Adapters translate raw errors into one of these kinds; the orchestrator
// decides per stage whether a kind is recoverable.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindQueueFull          Kind = "queue_full"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindTransientTransport Kind = "transient_transport"
	KindDataIntegrity      Kind = "data_integrity"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the common error envelope used across package boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix += " (" + e.Op + ")"
	}
	if e.Message != "" {
		return prefix + ": " + e.Message
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Message: message}
}

// Errorf creates a classified error from a format string.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether an error should be retried inside an adapter.
// Only transport-level failures qualify; everything else fails immediately.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientTransport
}

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed on " + e.Field + ": " + e.Message
}
