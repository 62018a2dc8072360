package invite

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("invite not found")
	ErrNotActive     = errors.New("invite not active")
	ErrNotMember     = errors.New("caller is not a group member")
	ErrAlreadyMember = errors.New("already a group member")
	ErrForbidden     = errors.New("forbidden")
)
