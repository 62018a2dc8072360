package identity

import "strings"

// NormalizeEmail is the lookup key for emails: trimmed and lower-cased.
// Stores index on it so "Ada@Example.com" and "ada@example.com" are one account.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
