package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded access credential.
type Claims struct {
	UserID    string
	Email     string
	DeviceID  string
	ExpiresAt time.Time
}

// Expired reports whether the credential's signed expiry has passed at now.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Identity returns the normalized identity carried by the claims.
func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, DeviceID: c.DeviceID}
}

// VerifyOptions tunes Codec.Verify.
type VerifyOptions struct {
	// IgnoreExpiry accepts a signature-valid credential whose expiry has passed.
	// It exists for the refresh path only.
	IgnoreExpiry bool

	// Now is the evaluation time; zero means time.Now.
	Now time.Time
}

type accessClaims struct {
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access credentials. It is stateless and safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewCodec builds a Codec from cfg. It fails with ErrConfig when the signing secret is unset.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrConfig
	}
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = DefaultConfig().AccessTTL
	}
	return &Codec{
		secret: append([]byte(nil), cfg.SigningSecret...),
		issuer: cfg.Issuer,
		ttl:    ttl,
	}, nil
}

// Sign issues an access credential for the given identity, expiring AccessTTL after now.
func (c *Codec) Sign(userID, email, deviceID string, now time.Time) (string, time.Time, error) {
	if c == nil || len(c.secret) == 0 {
		return "", time.Time{}, ErrConfig
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(email) == "" {
		return "", time.Time{}, fmt.Errorf("session: sign: missing user id or email")
	}
	if now.IsZero() {
		now = time.Now()
	}

	exp := jwt.NewNumericDate(now.Add(c.ttl))
	claims := accessClaims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign: %w", err)
	}
	return signed, exp.Time, nil
}

// Verify checks the signature and decodes the credential.
// Failures map to ErrMalformedCredential, ErrInvalidSignature or ErrCredentialExpired.
func (c *Codec) Verify(raw string, opts VerifyOptions) (Claims, error) {
	if c == nil || len(c.secret) == 0 {
		return Claims{}, ErrConfig
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMalformedCredential
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	if opts.IgnoreExpiry {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return c.secret, nil
	}, parserOpts...)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if claims.UserID == "" || claims.Subject == "" || claims.ExpiresAt == nil {
		return Claims{}, ErrMalformedCredential
	}
	if opts.IgnoreExpiry && c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrInvalidSignature
	}

	return Claims{
		UserID:    claims.UserID,
		Email:     claims.Subject,
		DeviceID:  claims.DeviceID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrCredentialExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedCredential
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, ErrInvalidSignature):
		return ErrInvalidSignature
	default:
		return ErrMalformedCredential
	}
}
