// Package identity holds Huddle's user principal and its persistence.
//
// A User carries its outstanding refresh credentials inline, one per signed-in
// device, and an account variant that is either pending (profile not set up)
// or approved (username and profile image present).
package identity
