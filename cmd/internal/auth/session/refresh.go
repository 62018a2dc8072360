package session

import (
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/security/token"
)

// RefreshPolicy implements the refresh-token operations on a User's stored list.
// It never persists; callers save the user's list after mutating it.
type RefreshPolicy struct {
	TTL        time.Duration
	Grace      time.Duration
	TokenBytes int
}

// NewRefreshPolicy derives the policy from cfg.
func NewRefreshPolicy(cfg Config) RefreshPolicy {
	return RefreshPolicy{
		TTL:        cfg.RefreshTTL,
		Grace:      cfg.RotationGrace,
		TokenBytes: cfg.RefreshTokenBytes,
	}
}

// Issue mints a fresh credential for deviceID expiring TTL after now.
func (p RefreshPolicy) Issue(deviceID string, now time.Time) (identity.RefreshCredential, error) {
	tok, err := token.NewOpaque(p.TokenBytes)
	if err != nil {
		return identity.RefreshCredential{}, err
	}
	return identity.RefreshCredential{
		Token:    tok,
		DeviceID: deviceID,
		ExpDate:  now.Add(p.TTL),
	}, nil
}

// IsValid reports whether u holds tok with an expiry at or after now.
func (p RefreshPolicy) IsValid(u identity.User, tok string, now time.Time) bool {
	for _, c := range u.RefreshTokens {
		if token.Equal(c.Token, tok) && !c.Expired(now) {
			return true
		}
	}
	return false
}

// Add appends c to u's list.
func (p RefreshPolicy) Add(u *identity.User, c identity.RefreshCredential) {
	u.RefreshTokens = append(u.RefreshTokens, c)
}

// Rotate shortens old's expiry to the grace window and appends a fresh credential.
// The old entry is kept so requests that already captured it still succeed
// until the window closes. Expired entries are swept in the same pass.
func (p RefreshPolicy) Rotate(u *identity.User, old, deviceID string, now time.Time) (identity.RefreshCredential, error) {
	graceEnd := now.Add(p.Grace)

	found := false
	for i := range u.RefreshTokens {
		c := &u.RefreshTokens[i]
		if !token.Equal(c.Token, old) {
			continue
		}
		found = true
		if c.ExpDate.After(graceEnd) {
			c.ExpDate = graceEnd
		}
	}
	if !found {
		return identity.RefreshCredential{}, ErrRefreshNotFound
	}

	next, err := p.Issue(deviceID, now)
	if err != nil {
		return identity.RefreshCredential{}, err
	}

	p.Sweep(u, now)
	p.Add(u, next)
	return next, nil
}

// Sweep drops credentials that expired before now.
func (p RefreshPolicy) Sweep(u *identity.User, now time.Time) {
	kept := u.RefreshTokens[:0]
	for _, c := range u.RefreshTokens {
		if !c.Expired(now) {
			kept = append(kept, c)
		}
	}
	u.RefreshTokens = kept
}

// Remove drops tok from u's list. It reports whether anything was removed.
func (p RefreshPolicy) Remove(u *identity.User, tok string) bool {
	kept := u.RefreshTokens[:0]
	removed := false
	for _, c := range u.RefreshTokens {
		if token.Equal(c.Token, tok) {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	u.RefreshTokens = kept
	return removed
}
