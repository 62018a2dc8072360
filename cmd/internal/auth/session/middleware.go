package session

import (
	"context"
	"encoding/json"
	"net/http"

	"huddle/cmd/identity"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	userKey
)

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity attached by Guard, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// WithUser returns a context carrying the stored user loaded during verification.
func WithUser(ctx context.Context, u identity.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the user attached by Guard. Only the refresh branch loads one.
func UserFrom(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userKey).(identity.User)
	return u, ok
}

// Guard wraps next so it only runs for verified callers.
// Denied callers get 401 with both cookies cleared.
func Guard(v *Verifier, cookies Cookies, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := v.Verify(r.Context(), cookies.Read(r))
		cookies.Apply(w.Header(), out)

		if !out.Accepted() {
			WriteUnauthorized(w)
			return
		}

		ctx := WithIdentity(r.Context(), out.Identity)
		if out.User != nil {
			ctx = WithUser(ctx, *out.User)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WriteUnauthorized writes the uniform deny response.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "cookie-token")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Missing valid client credentials"})
}
