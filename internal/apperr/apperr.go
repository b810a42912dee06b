// Package apperr defines the error taxonomy shared by the engine packages.
//
// Every error carries a Kind. Validation, not-found and conflict errors are
// expected outcomes the caller can act on. Provider and persistence errors
// are infrastructure failures.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

// Error kinds.
const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindProvider    Kind = "provider"
	KindPersistence Kind = "persistence"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel matching this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && Kind(k) == e.Kind
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation  error = kindSentinel(KindValidation)
	ErrNotFound    error = kindSentinel(KindNotFound)
	ErrConflict    error = kindSentinel(KindConflict)
	ErrProvider    error = kindSentinel(KindProvider)
	ErrPersistence error = kindSentinel(KindPersistence)
)

// Validation creates a validation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error for the named resource.
func NotFound(op, resource, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

// Provider wraps a generation failure.
func Provider(op string, err error) *Error {
	return &Error{Kind: KindProvider, Op: op, Message: "generation failed", Err: err}
}

// Persistence wraps a storage failure.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: "storage failure", Err: err}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsExpected reports whether err is a domain outcome rather than an
// infrastructure failure.
func IsExpected(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict:
		return true
	default:
		return false
	}
}
