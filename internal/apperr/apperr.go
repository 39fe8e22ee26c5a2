// Package apperr provides the shared error taxonomy for the credit engine.
//
// Every error that can reach the HTTP layer is classified into one of a
// closed set of kinds. The HTTP layer holds a single kind-to-status-code
// mapping instead of each package inventing its own sentinel errors and
// the handler guessing a status code per sentinel.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error classifications (spec §7).
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindUnauthorized      Kind = "unauthorized"
	KindRateLimited       Kind = "rate_limited"
	KindDependencyFailure Kind = "dependency_failure"
	KindCircuitOpen       Kind = "circuit_open"
	KindAgentFailure      Kind = "agent_failure"
	KindFatalInternal     Kind = "fatal_internal"
)

// Error is a classified application error carrying enough context for the
// HTTP layer to render a response and for logs to carry the cause chain.
type Error struct {
	Kind    Kind
	Message string
	Detail  string // extra machine-readable detail, e.g. dependency name
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches a machine-readable detail string (e.g. a dependency
// name for KindDependencyFailure, or a retry-after seconds value rendered
// by the caller).
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Validation, NotFound, Conflict, Unauthorized are convenience constructors
// matching the taxonomy entries that originate deep in domain services.
func Validation(message string) *Error { return New(KindValidation, message) }
func NotFound(noun string) *Error      { return New(KindNotFound, noun+" not found") }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// DependencyFailure classifies a retriable external failure after the
// retry budget is exhausted.
func DependencyFailure(dependency string, cause error) *Error {
	return Wrap(KindDependencyFailure, "dependency unavailable", cause).WithDetail(dependency)
}

// RateLimited builds a 429-mapped error; retryAfter is seconds.
func RateLimited(retryAfter int) *Error {
	return New(KindRateLimited, "rate limit exceeded").WithDetail(fmt.Sprintf("%d", retryAfter))
}

// CircuitOpen builds a 502-mapped error for a tripped circuit.
func CircuitOpen(dependency string, retryAfterSeconds int) *Error {
	return New(KindCircuitOpen, "circuit open").
		WithDetail(fmt.Sprintf("%s:%d", dependency, retryAfterSeconds))
}

// KindOf extracts the Kind from err, defaulting to FatalInternal for
// unclassified errors (the catch-all mapped to 500).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindFatalInternal
}
