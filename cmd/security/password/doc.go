// Package password provides password hashing and verification for Huddle.
//
// It implements Argon2id hashing in the PHC string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - A server-side pepper applied before stretching
// - Password policy validation
// - A placeholder hash for timing-resistant login on unknown accounts
//
// Hash strings are treated as untrusted input during Verify, and hashes whose
// parameters exceed the configured bounds are refused.
package password
