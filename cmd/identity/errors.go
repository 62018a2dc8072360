package identity

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers branch with errors.Is; the HTTP layer maps them to status codes.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Error ties a sentinel kind to the store operation that produced it.
// Detail names a field or resource and never carries user data.
type Error struct {
	Op     string
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func invalid(op, detail string) error { return &Error{Op: op, Kind: ErrInvalidInput, Detail: detail} }
func conflict(op, field string) error { return &Error{Op: op, Kind: ErrConflict, Detail: field} }
func userNotFound(op string) error    { return &Error{Op: op, Kind: ErrNotFound, Detail: "user"} }

// IsConflict reports a uniqueness violation such as a taken email.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports a missing user.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports a rejected field value.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
