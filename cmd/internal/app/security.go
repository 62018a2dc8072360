package app

import (
	"errors"

	"huddle/cmd/internal/auth/session"
	"huddle/cmd/security/password"
)

const (
	minSigningSecretBytes = 32
	minPepperBytes        = 16
)

var (
	ErrWeakSigningSecret = errors.New("security policy: HUDDLE_JWT_SECRET is shorter than 32 bytes")
	ErrPepperRequired    = errors.New("security policy: HUDDLE_PASSWORD_PEPPER is missing or shorter than 16 bytes")
	ErrInsecureCookies   = errors.New("security policy: HUDDLE_COOKIE_SECURE must be true")
)

// ValidateSecurityConfig enforces the startup security policy.
//
// A missing pepper is always fatal because login and registration cannot
// hash without it. Length and cookie checks apply when cfg.RequireStrongSecrets is set.
func ValidateSecurityConfig(cfg Config, sess session.Config, pw password.Config) error {
	if len(pw.Pepper) == 0 {
		return ErrPepperRequired
	}
	if !cfg.RequireStrongSecrets {
		return nil
	}

	// Lengths are measured in bytes because the secrets are used as raw keys.
	if len(sess.SigningSecret) < minSigningSecretBytes {
		return ErrWeakSigningSecret
	}
	if len(pw.Pepper) < minPepperBytes {
		return ErrPepperRequired
	}
	if !sess.Cookie.Secure {
		return ErrInsecureCookies
	}
	return nil
}
