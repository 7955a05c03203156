// Package errors defines the error kinds surfaced by the identity resolver.
// Callers branch on Kind (or errors.Is against the sentinels) instead of
// inspecting messages.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of error
type Kind string

const (
	// KindInvalidInput is a client error; its message is safe to return verbatim
	KindInvalidInput Kind = "invalid_input"
	// KindStorageFailure wraps any read or write failure of the backing store
	KindStorageFailure Kind = "storage_failure"
	// KindConflict is a uniqueness violation caused by a concurrent writer
	KindConflict Kind = "conflict"
)

// Sentinels for errors.Is checks
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrStorageFailure = errors.New("storage failure")
	ErrConflict       = errors.New("conflict")
)

// Error carries a kind, a message and the wrapped cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support against the kind sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrStorageFailure:
		return e.Kind == KindStorageFailure
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// NewInvalidInput creates a client-facing validation error
func NewInvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// NewStorageFailure wraps a store error
func NewStorageFailure(message string, err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: message, Err: err}
}

// NewConflict wraps a uniqueness violation
func NewConflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the message of the first *Error in err's chain
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
