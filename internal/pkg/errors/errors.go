// Package errors provides the orchestration error taxonomy for Firewatch.
//
// Activity failures carry a class that drives the engine's retry decision:
// timeouts and transient failures are retryable on retry-bearing activities,
// permanent failures never are. Replay inconsistency is a separate, always
// fatal condition raised when recorded history cannot be reconciled with the
// current code.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Class categorizes an activity failure for retry decisions.
type Class string

const (
	// ClassTimeout means the activity deadline elapsed with no response.
	ClassTimeout Class = "TIMEOUT"

	// ClassTransient means the failure is expected to be retryable.
	ClassTransient Class = "TRANSIENT"

	// ClassPermanent means retrying cannot help.
	ClassPermanent Class = "PERMANENT"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound = errors.New("not found")

	// ErrReplayInconsistency marks recorded history that cannot be
	// reconciled with the current code. Always fatal for the instance.
	ErrReplayInconsistency = errors.New("replay inconsistency")
)

// ActivityError is a structured activity failure with a machine-readable
// code and a retry class.
type ActivityError struct {
	// Code is a machine-readable error code (e.g. "RESPONDER_UNREACHABLE").
	Code string `json:"code"`

	// Class drives the engine's retry decision.
	Class Class `json:"class"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ActivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Code, e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Class, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ActivityError) Unwrap() error {
	return e.Err
}

// Timeout creates a timeout-class activity error.
func Timeout(code, message string) *ActivityError {
	return &ActivityError{Code: code, Class: ClassTimeout, Message: message}
}

// Transient creates a transient-class activity error.
func Transient(code, message string) *ActivityError {
	return &ActivityError{Code: code, Class: ClassTransient, Message: message}
}

// Permanent creates a permanent-class activity error.
func Permanent(code, message string) *ActivityError {
	return &ActivityError{Code: code, Class: ClassPermanent, Message: message}
}

// Wrap wraps an existing error into an ActivityError of the given class.
func Wrap(err error, class Class, code, message string) *ActivityError {
	return &ActivityError{Code: code, Class: class, Message: message, Err: err}
}

// ReplayInconsistent builds a fatal replay-inconsistency error.
func ReplayInconsistent(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrReplayInconsistency, fmt.Sprintf(format, args...))
}

// ClassOf extracts the retry class from an error. Context deadline expiry
// maps to ClassTimeout; anything unclassified is treated as permanent.
func ClassOf(err error) Class {
	var actErr *ActivityError
	if errors.As(err, &actErr) {
		return actErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassPermanent
}

// IsRetryable reports whether the engine may retry after this error on a
// retry-bearing activity.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ClassTimeout, ClassTransient:
		return true
	default:
		return false
	}
}

// CodeOf extracts the machine-readable code, or "UNCLASSIFIED".
func CodeOf(err error) string {
	var actErr *ActivityError
	if errors.As(err, &actErr) {
		return actErr.Code
	}
	return "UNCLASSIFIED"
}

// IsActivityError checks if an error is an ActivityError and returns it.
func IsActivityError(err error) (*ActivityError, bool) {
	var actErr *ActivityError
	if errors.As(err, &actErr) {
		return actErr, true
	}
	return nil, false
}
