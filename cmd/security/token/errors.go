package token

import "errors"

// Public, stable errors for callers.
var (
	ErrTooShort = errors.New("token entropy too short")
	ErrTooLong  = errors.New("token entropy too long")
)
