package session

import "errors"

var (
	// ErrConfig is returned for missing or invalid configuration, such as an unset signing secret.
	ErrConfig = errors.New("invalid session config")

	// ErrMalformedCredential is returned when an access credential cannot be parsed.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrInvalidSignature is returned when an access credential fails signature checks.
	ErrInvalidSignature = errors.New("invalid credential signature")

	// ErrCredentialExpired is returned by Codec.Verify when expiry is enforced and has passed.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrRefreshNotFound is returned when rotating a refresh token the user does not hold.
	ErrRefreshNotFound = errors.New("refresh credential not found")
)
