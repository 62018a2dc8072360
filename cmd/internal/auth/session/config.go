package session

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"huddle/cmd/security/token"
)

// Config defines all runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access credentials.
	Issuer string

	// SigningSecret is the HMAC key for access credentials. Required.
	SigningSecret []byte

	// AccessTTL is the signed lifetime of an access credential.
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of a refresh credential and the max-age of both cookies.
	RefreshTTL time.Duration

	// RotationGrace is how long a rotated refresh credential stays valid.
	RotationGrace time.Duration

	// LockTTL bounds how long a RaceGuard entry marks a rotation in flight.
	LockTTL time.Duration

	// RefreshTokenBytes is the entropy size of refresh credentials.
	RefreshTokenBytes int

	Cookie CookieConfig
}

// CookieConfig controls the attributes of the auth and refresh cookies.
type CookieConfig struct {
	Secure   bool
	Domain   string
	Path     string
	SameSite http.SameSite
}

// DefaultConfig returns the production defaults minus the signing secret.
func DefaultConfig() Config {
	return Config{
		Issuer:            "huddle",
		AccessTTL:         10 * time.Minute,
		RefreshTTL:        30 * 24 * time.Hour,
		RotationGrace:     10 * time.Second,
		LockTTL:           5 * time.Second,
		RefreshTokenBytes: token.DefaultBytes,
		Cookie: CookieConfig{
			Secure:   true,
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - HUDDLE_JWT_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - HUDDLE_AUTH_ISSUER
//   - HUDDLE_AUTH_ACCESS_TTL
//   - HUDDLE_AUTH_REFRESH_TTL
//   - HUDDLE_AUTH_ROTATION_GRACE
//   - HUDDLE_AUTH_REFRESH_LOCK_TTL
//   - HUDDLE_AUTH_REFRESH_TOKEN_BYTES
//   - HUDDLE_COOKIE_SECURE
//   - HUDDLE_COOKIE_DOMAIN
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("HUDDLE_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HUDDLE_AUTH_ACCESS_TTL", &cfg.AccessTTL},
		{"HUDDLE_AUTH_REFRESH_TTL", &cfg.RefreshTTL},
		{"HUDDLE_AUTH_ROTATION_GRACE", &cfg.RotationGrace},
		{"HUDDLE_AUTH_REFRESH_LOCK_TTL", &cfg.LockTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("HUDDLE_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < token.MinBytes || n > token.MaxBytes {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	if v := os.Getenv("HUDDLE_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.Cookie.Secure = b
	}
	cfg.Cookie.Domain = strings.TrimSpace(os.Getenv("HUDDLE_COOKIE_DOMAIN"))

	cfg.SigningSecret = []byte(strings.TrimSpace(os.Getenv("HUDDLE_JWT_SECRET")))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	if len(c.SigningSecret) == 0 {
		return ErrConfig
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.RotationGrace <= 0 || c.LockTTL <= 0 {
		return ErrConfig
	}
	// An access credential must expire before the refresh credential that renews it.
	if c.AccessTTL >= c.RefreshTTL {
		return ErrConfig
	}
	return nil
}
