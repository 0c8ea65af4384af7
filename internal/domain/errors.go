package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Match them with errors.Is.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrProfileRequired        = errors.New("profile required")
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnavailable            = errors.New("unavailable")
)

// Error pairs a kind with the message shown to the caller.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.kind
}

func (e *Error) Kind() error {
	return e.kind
}

func NewError(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Errorf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrUnauthenticated,
		ErrProfileRequired,
		ErrNotFound,
		ErrInvalidRequest,
		ErrConflict,
		ErrForbidden,
		ErrInvalidStateTransition,
		ErrUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
