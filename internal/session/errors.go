package session

import (
	"errors"
	"fmt"
)

// Kind classifies a session error for the transport boundaries.
type Kind string

const (
	KindConflict     Kind = "conflict"
	KindAuth         Kind = "auth"
	KindState        Kind = "state"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindPersistence  Kind = "persistence"
)

// Error is returned by every failing Manager operation. Message is safe to
// show to the participant who issued the command.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrConflict) holds
// for any conflict regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrConflict     = &Error{Kind: KindConflict}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrState        = &Error{Kind: KindState}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrPersistence  = &Error{Kind: KindPersistence}
)

// KindOf returns the kind of err, or "" when err is not a session error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: err.Error(), Err: err}
}

func persistenceError(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: fmt.Sprintf("failed to %s: %v", op, err), Err: err}
}

func errNoSession() *Error { return newError(KindNotFound, "No active retro") }
func errClosed() *Error    { return newError(KindState, "retro is closed") }
func errNotAdmin() *Error  { return newError(KindAuth, "Unauthorized") }
