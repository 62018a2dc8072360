package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/security/password"
)

const (
	msgInvalidLogin     = "Invalid email or password"
	msgLoggedIn         = "Logged in successfully"
	msgLoggedOut        = "Logged out successfully"
	msgRegistered       = "Registration received"
	msgInvalidBody      = "Invalid request body"
	msgServerError      = "Server error"
	msgPasswordRejected = "Password does not meet requirements"
)

var errRefreshNotHeld = errors.New("authapi: refresh token not held")

// Passwords is the hashing surface the handlers need.
type Passwords interface {
	password.Verifier
	Hash(plain string) (string, error)
	Validate(plain string) error
}

// PlaceholderHash yields a hash that is verified when no user matches a login.
type PlaceholderHash interface {
	Hash() (string, error)
}

// ProfileNotifier is told about profile changes so connected peers can refresh.
type ProfileNotifier interface {
	UserUpdated(ctx context.Context, u identity.User)
}

// Deps are the collaborators of Handler. Pool and Notifier are optional.
type Deps struct {
	Users       identity.Store
	Codec       *session.Codec
	Policy      session.RefreshPolicy
	Cookies     session.Cookies
	Passwords   Passwords
	Placeholder PlaceholderHash
	Notifier    ProfileNotifier
	Metrics     *metrics.Metrics
	Pool        *pgxpool.Pool
}

// Handler serves registration, login, logout and the caller's own profile.
type Handler struct {
	log *slog.Logger
	cfg Config

	users       identity.Store
	codec       *session.Codec
	policy      session.RefreshPolicy
	cookies     session.Cookies
	passwords   Passwords
	placeholder PlaceholderHash
	notifier    ProfileNotifier
	metrics     *metrics.Metrics

	audit    *auditor
	throttle *loginThrottle
	now      func() time.Time
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Users == nil || deps.Codec == nil || deps.Passwords == nil || deps.Placeholder == nil {
		return nil, errors.New("auth: handler requires users, codec, passwords and placeholder")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	return &Handler{
		log:         log,
		cfg:         cfg,
		users:       deps.Users,
		codec:       deps.Codec,
		policy:      deps.Policy,
		cookies:     deps.Cookies,
		passwords:   deps.Passwords,
		placeholder: deps.Placeholder,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		audit:       newAuditor(log, deps.Pool, cfg.AuditSchema),
		throttle:    newLoginThrottle(cfg),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register wires routes onto mux. Profile routes are wrapped by guard.
func (h *Handler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("GET /users/me", guard(http.HandlerFunc(h.handleMe)))
	mux.Handle("PATCH /users/me", guard(http.HandlerFunc(h.handleUpdateMe)))
}

// ---- models ----

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateMeRequest struct {
	Username            *string `json:"username"`
	ProfileImg          *string `json:"profileImg"`
	PrefersOnlineStatus *string `json:"prefersOnlineStatus"`
}

type meResponse struct {
	ID                  string `json:"_id"`
	Name                string `json:"name"`
	ProfileImg          string `json:"profileImg"`
	Email               string `json:"email"`
	AccountStatus       string `json:"accountStatus"`
	PrefersOnlineStatus string `json:"prefersOnlineStatus"`
}

func toMeResponse(u identity.User) meResponse {
	s := u.Summary()
	return meResponse{
		ID:                  u.ID,
		Name:                s.Username,
		ProfileImg:          s.ProfileImg,
		Email:               u.Email,
		AccountStatus:       string(u.Status()),
		PrefersOnlineStatus: string(u.PreferredStatus()),
	}
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeMessage(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if err := h.passwords.Validate(req.Password); err != nil {
		writeMessage(w, http.StatusBadRequest, msgPasswordRejected)
		return
	}

	// Hashing happens before the existence check so both outcomes cost the same.
	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		h.log.Error("auth.register.hash.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Now:          h.now(),
	})
	switch {
	case err == nil:
		h.audit.record(ctx, auditEvent{Action: "auth.register", UserID: u.ID, IP: ip, UA: r.UserAgent()})
	case identity.IsConflict(err):
		h.audit.record(ctx, auditEvent{Action: "auth.register.duplicate", IP: ip, UA: r.UserAgent()})
	default:
		h.log.Error("auth.register.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}

	// Same answer whether or not the email was already taken.
	writeMessage(w, http.StatusOK, msgRegistered)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, msgInvalidLogin)
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter := h.throttle.check(ip, email, now); blocked {
		h.audit.record(ctx, auditEvent{Action: "auth.login.rate_limited", IP: ip, UA: ua, Meta: map[string]any{
			"retry_after_s": int64(retryAfter.Seconds()),
		}})
		h.metrics.Login("rate_limited")
		writeRateLimited(w, retryAfter)
		return
	}

	user, err := h.users.UserByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeMessage(w, http.StatusInternalServerError, msgServerError)
			return
		}
		// Verify against the placeholder so a missing user costs one verification too.
		if err := h.verifyPlaceholder(req.Password); err != nil {
			h.log.Error("auth.login.placeholder.fail", "err", err)
			writeMessage(w, http.StatusInternalServerError, msgServerError)
			return
		}
		h.loginFailed(ctx, w, ip, ua, email, "", "not_found")
		return
	}

	match, err := h.passwords.Verify(user.PasswordHash, req.Password)
	if errors.Is(err, password.ErrPepperMissing) {
		h.log.Error("auth.login.verify.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}
	if err != nil || !match {
		h.loginFailed(ctx, w, ip, ua, email, user.ID, "bad_password")
		return
	}

	deviceID := uuid.NewString()
	access, accessExp, err := h.codec.Sign(user.ID, user.Email, deviceID, now)
	if err != nil {
		h.log.Error("auth.login.sign.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}
	refresh, err := h.policy.Issue(deviceID, now)
	if err != nil {
		h.log.Error("auth.login.refresh.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}

	_, err = h.users.EditRefreshTokens(ctx, user.ID, func(u *identity.User) error {
		h.policy.Sweep(u, now)
		h.policy.Add(u, refresh)
		return nil
	})
	if err != nil {
		h.log.Error("auth.login.persist.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}

	h.cookies.Set(w.Header(), session.Issued{AccessToken: access, AccessExp: accessExp, Refresh: refresh})
	h.throttle.reset(email)
	h.audit.record(ctx, auditEvent{Action: "auth.login.success", UserID: user.ID, DeviceID: deviceID, IP: ip, UA: ua})
	h.metrics.Login("success")

	writeMessage(w, http.StatusOK, msgLoggedIn)
}

func (h *Handler) verifyPlaceholder(plain string) error {
	hash, err := h.placeholder.Hash()
	if err != nil {
		return err
	}
	_, err = h.passwords.Verify(hash, plain)
	return err
}

func (h *Handler) loginFailed(ctx context.Context, w http.ResponseWriter, ip net.IP, ua, email, userID, reason string) {
	h.throttle.fail(ip, email, h.now())
	h.audit.record(ctx, auditEvent{Action: "auth.login.failed", UserID: userID, IP: ip, UA: ua, Meta: map[string]any{
		"reason": reason,
	}})
	h.metrics.Login("failure")
	writeMessage(w, http.StatusBadRequest, msgInvalidLogin)
}

// handleLogout drops the presented refresh credential when it can be matched
// to its owner and always clears both cookies.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creds := h.cookies.Read(r)
	userID := ""

	if creds.Access != "" && creds.Refresh != "" {
		now := h.now()
		claims, err := h.codec.Verify(creds.Access, session.VerifyOptions{IgnoreExpiry: true, Now: now})
		if err == nil {
			userID = claims.UserID
			h.revokeRefresh(ctx, claims, creds.Refresh, now)
		}
	}

	h.cookies.Clear(w.Header())
	h.audit.record(ctx, auditEvent{Action: "auth.logout", UserID: userID, IP: clientIP(r, h.cfg.TrustProxy), UA: r.UserAgent()})
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

func (h *Handler) revokeRefresh(ctx context.Context, claims session.Claims, token string, now time.Time) {
	u, err := h.users.UserByEmail(ctx, claims.Email)
	if err != nil || u.ID != claims.UserID {
		return
	}
	_, err = h.users.EditRefreshTokens(ctx, u.ID, func(cur *identity.User) error {
		if !h.policy.Remove(cur, token) {
			return errRefreshNotHeld
		}
		h.policy.Sweep(cur, now)
		return nil
	})
	if err != nil && !errors.Is(err, errRefreshNotHeld) {
		h.log.Warn("auth.logout.persist.fail", "user_id", u.ID, "err", err)
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMeResponse(u))
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}

	var req updateMeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	upd := identity.ProfileUpdate{Username: req.Username, ProfileImg: req.ProfileImg}
	if req.PrefersOnlineStatus != nil {
		status, ok := identity.ParseOnlineStatus(*req.PrefersOnlineStatus)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Unknown online status")
			return
		}
		upd.PrefersOnlineStatus = &status
	}

	ctx := r.Context()
	u, err := h.users.UpdateProfile(ctx, id.UserID, upd)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	case identity.IsNotFound(err):
		h.cookies.Clear(w.Header())
		session.WriteUnauthorized(w)
		return
	default:
		h.log.Error("auth.me.update.fail", "user_id", id.UserID, "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}

	if h.notifier != nil {
		h.notifier.UserUpdated(ctx, u)
	}
	writeJSON(w, http.StatusOK, toMeResponse(u))
}

// currentUser prefers the user the verifier already loaded and falls back to a lookup.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return identity.User{}, false
	}
	if u, ok := session.UserFrom(r.Context()); ok && u.ID == id.UserID {
		return u, true
	}

	u, err := h.users.UserByID(r.Context(), id.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			h.cookies.Clear(w.Header())
			session.WriteUnauthorized(w)
			return identity.User{}, false
		}
		h.log.Error("auth.me.fail", "user_id", id.UserID, "err", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return identity.User{}, false
	}
	return u, true
}

// ---- request helpers ----

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
