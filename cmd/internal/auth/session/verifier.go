package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/metrics"
)

// State names the branch of the verification state machine a request ended in.
type State string

const (
	StateNoCredential                    State = "no_credential"
	StateValidAccess                     State = "valid_access"
	StateExpiredAccessNoRefresh          State = "expired_no_refresh"
	StateExpiredAccessWithRefreshValid   State = "expired_refresh_valid"
	StateExpiredAccessWithRefreshInvalid State = "expired_refresh_invalid"
	StateRotationInFlight                State = "rotation_in_flight"
)

// Credentials are the raw cookie values presented by a caller.
type Credentials struct {
	Access  string
	Refresh string
}

// Identity is the normalized caller identity attached downstream on Accept.
type Identity struct {
	UserID   string
	Email    string
	DeviceID string
}

// Issued carries freshly minted credentials that must be set on the response.
type Issued struct {
	AccessToken string
	AccessExp   time.Time
	Refresh     identity.RefreshCredential
}

// Outcome is the verifier's decision.
type Outcome struct {
	State    State
	Identity Identity

	// User is the stored user when the refresh branch loaded one.
	User *identity.User

	// Issued is non-nil only after a rotation.
	Issued *Issued

	// Reason is a short internal label for logs; never sent to clients.
	Reason string

	accepted bool
}

// Accepted reports whether the caller may proceed.
func (o Outcome) Accepted() bool { return o.accepted }

// UserStore is the slice of identity.Store the verifier needs.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (identity.User, error)
	EditRefreshTokens(ctx context.Context, userID string, edit identity.RefreshEdit) (identity.User, error)
}

// Verifier runs the session state machine shared by HTTP calls and the realtime handshake.
type Verifier struct {
	codec   *Codec
	policy  RefreshPolicy
	guard   *RaceGuard
	users   UserStore
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithLogger sets the logger (default slog.Default).
func WithLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.log = l
		}
	}
}

// WithMetrics records outcomes and rotations on m.
func WithMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier wires a Verifier. The guard must be shared by every verifier in the process.
func NewVerifier(codec *Codec, policy RefreshPolicy, guard *RaceGuard, users UserStore, opts ...VerifierOption) (*Verifier, error) {
	if codec == nil || guard == nil || users == nil {
		return nil, ErrConfig
	}
	v := &Verifier{
		codec:  codec,
		policy: policy,
		guard:  guard,
		users:  users,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify decides whether creds authenticate a caller, rotating the refresh credential when needed.
func (v *Verifier) Verify(ctx context.Context, creds Credentials) Outcome {
	out := v.verify(ctx, creds)
	v.metrics.Verification(string(out.State))

	if out.accepted {
		v.log.Debug("auth.verify.accept", "state", string(out.State), "user_id", out.Identity.UserID, "rotated", out.Issued != nil)
	} else {
		v.log.Info("auth.verify.deny", "state", string(out.State), "reason", out.Reason)
	}
	return out
}

func (v *Verifier) verify(ctx context.Context, creds Credentials) Outcome {
	access := strings.TrimSpace(creds.Access)
	refresh := strings.TrimSpace(creds.Refresh)
	now := v.now()

	if access == "" {
		return deny(StateNoCredential, "missing access")
	}

	claims, err := v.codec.Verify(access, VerifyOptions{IgnoreExpiry: true, Now: now})
	if err != nil {
		reason := "malformed access"
		if errors.Is(err, ErrInvalidSignature) {
			reason = "invalid signature"
		}
		return deny(StateNoCredential, reason)
	}

	if !claims.Expired(now) {
		return Outcome{State: StateValidAccess, Identity: claims.Identity(), accepted: true}
	}

	if refresh == "" {
		return deny(StateExpiredAccessNoRefresh, "expired access")
	}

	user, err := v.users.UserByEmail(ctx, claims.Email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			v.log.Warn("auth.verify.lookup_failed", "err", err)
		}
		return deny(StateExpiredAccessWithRefreshInvalid, "user lookup")
	}
	if user.ID != claims.UserID {
		return deny(StateExpiredAccessWithRefreshInvalid, "subject mismatch")
	}

	// Another request is rotating this token. Accept on the signed claims alone.
	if v.guard.HasLock(refresh) {
		return follower(claims, user)
	}

	if !v.policy.IsValid(user, refresh, now) {
		return deny(StateExpiredAccessWithRefreshInvalid, "refresh invalid")
	}

	// Lost the race between HasLock and TryAcquire.
	if !v.guard.TryAcquire(refresh) {
		return follower(claims, user)
	}

	return v.rotate(ctx, claims, user, refresh, now)
}

func (v *Verifier) rotate(ctx context.Context, claims Claims, user identity.User, refresh string, now time.Time) Outcome {
	deviceID := claims.DeviceID

	accessToken, accessExp, err := v.codec.Sign(user.ID, user.Email, deviceID, now)
	if err != nil {
		v.log.Error("auth.rotate.sign_failed", "user_id", user.ID, "err", err)
		return deny(StateExpiredAccessWithRefreshInvalid, "sign")
	}

	// The list is re-read under the store's lock: other devices may have
	// logged in or rotated since the lookup above.
	var fresh identity.RefreshCredential
	next, err := v.users.EditRefreshTokens(ctx, user.ID, func(u *identity.User) error {
		var err error
		fresh, err = v.policy.Rotate(u, refresh, deviceID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return deny(StateExpiredAccessWithRefreshInvalid, "refresh revoked")
		}
		v.log.Error("auth.rotate.persist_failed", "user_id", user.ID, "err", err)
		return deny(StateExpiredAccessWithRefreshInvalid, "persist")
	}

	v.metrics.Rotation()
	v.log.Info("auth.rotate", "user_id", next.ID, "device_id", deviceID)

	return Outcome{
		State:    StateExpiredAccessWithRefreshValid,
		Identity: Identity{UserID: next.ID, Email: next.Email, DeviceID: deviceID},
		User:     &next,
		Issued: &Issued{
			AccessToken: accessToken,
			AccessExp:   accessExp,
			Refresh:     fresh,
		},
		accepted: true,
	}
}

func deny(state State, reason string) Outcome {
	return Outcome{State: state, Reason: reason}
}

func follower(claims Claims, user identity.User) Outcome {
	return Outcome{
		State:    StateRotationInFlight,
		Identity: claims.Identity(),
		User:     &user,
		accepted: true,
	}
}
