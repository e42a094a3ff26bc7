package carpool

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrBadRequest       = errors.New("bad request")
)

// ErrInviteExpired is returned when a response arrives after the invite's expiry.
var ErrInviteExpired error = &reasonError{kind: ErrBadRequest, reason: "invite has expired"}

// reasonError carries a display-ready reason and unwraps to its kind.
type reasonError struct {
	kind   error
	reason string
}

func (e *reasonError) Error() string { return e.reason }

func (e *reasonError) Unwrap() error { return e.kind }

func failf(kind error, format string, args ...any) error {
	return &reasonError{kind: kind, reason: fmt.Sprintf(format, args...)}
}
