// Package fault defines the error taxonomy shared across the coordination
// core: validation, external-service, state, and processing errors. Callers
// classify with errors.As and surface Code/Cause pairs to the orchestrator.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// Validation marks malformed or missing required input.
	Validation Kind = "ValidationError"
	// ExternalService marks a failed call to a collaborator (OCR service,
	// transform provider, callback API).
	ExternalService Kind = "ExternalServiceError"
	// State marks a token-store inconsistency, e.g. a signal succeeded but
	// the token could not be deleted.
	State Kind = "StateError"
	// Processing marks shard parse or merge failures.
	Processing Kind = "ProcessingError"
)

// Error carries a kind, a short machine-readable code, and an optional cause.
type Error struct {
	Kind  Kind
	Code  string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with no underlying cause.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error wrapping cause. A nil cause returns nil.
func Wrap(kind Kind, code string, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or "" if err carries no taxonomy.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CodeOf returns the machine code of err, or fallback if err carries none.
func CodeOf(err error, fallback string) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fallback
}
