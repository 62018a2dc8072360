// Package session implements Huddle's cookie session lifecycle.
//
// An access credential is a short-lived HS256 token carrying the user id,
// email (as subject) and device id. A refresh credential is an opaque random
// token stored on the user, one per device. When a request presents an
// expired access credential together with a valid refresh credential, the
// Verifier rotates the refresh credential exactly once per token: a RaceGuard
// entry marks the rotation in flight, concurrent followers are accepted on
// their expired claims, and the old refresh token survives for a short grace
// window instead of being deleted.
//
// The Verifier is transport-agnostic. HTTPGuard applies its outcome to plain
// requests; the realtime gateway applies it to the upgrade response headers.
package session
