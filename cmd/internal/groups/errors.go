package groups

import "errors"

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrForbidden    = errors.New("forbidden")

	// ErrOwnerCannotLeave is returned when a group owner tries to leave instead of deleting.
	ErrOwnerCannotLeave = errors.New("owner_cannot_leave")
)
