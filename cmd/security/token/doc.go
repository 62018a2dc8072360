// Package token provides opaque token primitives for Huddle.
//
// Refresh credentials are random byte strings encoded as base64url without
// padding. They are compared in constant time so a lookup against a user's
// stored list does not leak how many leading bytes matched.
package token
