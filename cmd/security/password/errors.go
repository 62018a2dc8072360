package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")

	// ErrPepperMissing is a configuration error: hashing without the pepper
	// would produce hashes that can never verify once it is set.
	ErrPepperMissing = errors.New("password pepper not configured")
)
