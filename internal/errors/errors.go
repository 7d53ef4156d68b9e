// Package errors defines the kind-tagged error types shared by the engine,
// the chronicle and the routing layer.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

// Predefined error kinds
const (
	// Dispatch errors
	InvalidAction Kind = "INVALID_ACTION"
	UnknownAction Kind = "UNKNOWN_ACTION"

	// Semantic errors
	PreconditionFailed Kind = "PRECONDITION_FAILED"

	// Referential errors
	DuplicateAgent Kind = "DUPLICATE_AGENT"
	UnknownAgent   Kind = "UNKNOWN_AGENT"
	UnknownZone    Kind = "UNKNOWN_ZONE"
	UnknownToken   Kind = "UNKNOWN_TOKEN"
	UnknownStack   Kind = "UNKNOWN_STACK"
	UnknownSource  Kind = "UNKNOWN_SOURCE"

	// Persistence and wire errors
	CorruptDocument Kind = "CORRUPT_DOCUMENT"
	CorruptMessage  Kind = "CORRUPT_MESSAGE"

	// Runtime errors
	Cancelled Kind = "CANCELLED"
	Timeout   Kind = "TIMEOUT"

	// Reserved for impossible states; fatal for the containing chronicle
	InternalInvariantViolation Kind = "INTERNAL_INVARIANT_VIOLATION"
)

// Error is a structured, kind-tagged error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates a new kind-tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error as a kind-tagged error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Detail: err.Error()}
}

// KindOf returns the kind of an error, or InternalInvariantViolation if the
// error carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalInvariantViolation
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AsError extracts a kind-tagged error if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
