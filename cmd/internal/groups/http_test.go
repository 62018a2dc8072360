package groups

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/cmd/internal/auth/session"
)

// asUser stands in for the session guard.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := session.WithIdentity(r.Context(), session.Identity{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func serve(t *testing.T, f fixture, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(nil, f.svc).Register(mux, asUser(userID))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_JoinAndLeave(t *testing.T) {
	f := newFixture(t)
	g, err := f.svc.Create(context.Background(), f.owner.ID, "Gophers", nil)
	require.NoError(t, err)

	rec := serve(t, f, f.guest.ID, http.MethodPost, "/groups/"+g.ID+"/members", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got groupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, g.ID, got.ID)
	assert.Len(t, got.Channels, 1)

	rec = serve(t, f, f.guest.ID, http.MethodDelete, "/groups/"+g.ID+"/members/me", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, f, f.owner.ID, http.MethodDelete, "/groups/"+g.ID+"/members/me", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTP_CreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := serve(t, f, f.owner.ID, http.MethodPost, "/groups", `{"name":"Gophers","channels":["general","help"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(t, f, f.owner.ID, http.MethodGet, "/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []groupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Len(t, list[0].Channels, 2)

	rec = serve(t, f, f.owner.ID, http.MethodPost, "/groups", `{"name":"x","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_UnknownGroup(t *testing.T) {
	f := newFixture(t)
	rec := serve(t, f, f.guest.ID, http.MethodPost, "/groups/missing/members", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Group not found")
}

func TestHTTP_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	mux := http.NewServeMux()
	NewHandler(nil, f.svc).Register(mux, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
