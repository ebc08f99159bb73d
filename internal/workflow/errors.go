package workflow

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindForbidden         Kind = "Forbidden"
	KindConflict          Kind = "Conflict"
	KindInvalidTransition Kind = "InvalidTransition"
	KindValidation        Kind = "ValidationError"
	KindExpired           Kind = "Expired"
)

// Error is the typed failure every workflow operation returns for a rejected
// request. Storage and infrastructure failures are returned unwrapped.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches on Kind so callers can test errors.Is(err, workflow.ErrExpired).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrExpired           = &Error{Kind: KindExpired}
)

func NotFound(message string) error          { return &Error{Kind: KindNotFound, Message: message} }
func Forbidden(message string) error         { return &Error{Kind: KindForbidden, Message: message} }
func Conflict(message string) error          { return &Error{Kind: KindConflict, Message: message} }
func InvalidTransition(message string) error { return &Error{Kind: KindInvalidTransition, Message: message} }
func Validation(message string) error        { return &Error{Kind: KindValidation, Message: message} }
func Expired(message string) error           { return &Error{Kind: KindExpired, Message: message} }

// KindOf returns the taxonomy kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}
