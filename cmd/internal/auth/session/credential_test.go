package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SigningSecret = []byte("test-signing-secret")
	c, err := NewCodec(cfg)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RequiresSecret(t *testing.T) {
	_, err := NewCodec(DefaultConfig())
	require.ErrorIs(t, err, ErrConfig)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := testCodec(t)
	now := time.Now()

	tok, exp, err := c.Sign("01HUSER", "ada@example.com", "dev-1", now)
	require.NoError(t, err)
	assert.True(t, exp.After(now))

	claims, err := c.Verify(tok, VerifyOptions{Now: now})
	require.NoError(t, err)
	assert.Equal(t, "01HUSER", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "dev-1", claims.DeviceID)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())
	assert.False(t, claims.Expired(now))
}

func TestCodec_ExpiredUnlessIgnored(t *testing.T) {
	c := testCodec(t)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok, _, err := c.Sign("u1", "a@b.c", "d1", issued)
	require.NoError(t, err)

	later := issued.Add(time.Hour)

	_, err = c.Verify(tok, VerifyOptions{Now: later})
	require.ErrorIs(t, err, ErrCredentialExpired)

	claims, err := c.Verify(tok, VerifyOptions{Now: later, IgnoreExpiry: true})
	require.NoError(t, err)
	assert.True(t, claims.Expired(later))
	assert.Equal(t, "a@b.c", claims.Email)
}

func TestCodec_RejectsForeignSignature(t *testing.T) {
	c := testCodec(t)

	otherCfg := DefaultConfig()
	otherCfg.SigningSecret = []byte("someone-else")
	other, err := NewCodec(otherCfg)
	require.NoError(t, err)

	tok, _, err := other.Sign("u1", "a@b.c", "d1", time.Now())
	require.NoError(t, err)

	_, err = c.Verify(tok, VerifyOptions{IgnoreExpiry: true})
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCodec_RejectsNoneAlgorithm(t *testing.T) {
	c := testCodec(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": "u1",
		"sub":    "a@b.c",
		"iss":    "huddle",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(tok, VerifyOptions{})
	require.Error(t, err)
}

func TestCodec_Malformed(t *testing.T) {
	c := testCodec(t)
	for _, raw := range []string{"", "   ", "not-a-token", "a.b.c"} {
		_, err := c.Verify(raw, VerifyOptions{IgnoreExpiry: true})
		assert.ErrorIs(t, err, ErrMalformedCredential, "input %q", raw)
	}
}
