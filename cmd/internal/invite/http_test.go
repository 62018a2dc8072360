package invite

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/cmd/internal/auth/session"
)

func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := session.WithIdentity(r.Context(), session.Identity{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func serve(f inviteFixture, userID, method, path, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h := NewHandler(nil, f.svc, "https://chat.example.com/")
	h.now = func() time.Time { return f.now }
	h.Register(mux, asUser(userID))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

type createdEnvelope struct {
	Message string     `json:"message"`
	Data    inviteData `json:"data"`
}

func TestHTTP_GenerateAndRedeem(t *testing.T) {
	f := newInviteFixture(t)

	rec := serve(f, f.owner.ID, http.MethodPost, "/groups/"+f.group.ID+"/invites", `{"expTime":3600000,"maxUses":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created createdEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Invite generated successfully", created.Message)
	assert.Equal(t, "https://chat.example.com/invite/"+created.Data.InviteCode, created.Data.InviteURL)
	assert.True(t, f.now.Add(time.Hour).Equal(created.Data.ExpiresAt))
	assert.Equal(t, 5, created.Data.MaxUses)

	rec = serve(f, f.guest.ID, http.MethodGet, "/invites/"+created.Data.InviteCode+"/group", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"group":{"_id":"`+f.group.ID+`","name":"Gophers"}}}`, rec.Body.String())

	rec = serve(f, f.guest.ID, http.MethodPost, "/invites", `{"inviteCode":"`+created.Data.InviteCode+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Successfully joined group")

	rec = serve(f, f.guest.ID, http.MethodPost, "/invites", `{"inviteCode":"`+created.Data.InviteCode+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTP_Errors(t *testing.T) {
	f := newInviteFixture(t)

	rec := serve(f, f.guest.ID, http.MethodPost, "/groups/"+f.group.ID+"/invites", `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(f, f.owner.ID, http.MethodPost, "/groups/"+f.group.ID+"/invites", `{"expTime":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(f, f.owner.ID, http.MethodPost, "/groups/nope/invites", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(f, f.guest.ID, http.MethodPost, "/invites", `{"inviteCode":"bogus"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid invite code")

	rec = serve(f, f.guest.ID, http.MethodPost, "/invites", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_Revoke(t *testing.T) {
	f := newInviteFixture(t)

	rec := serve(f, f.owner.ID, http.MethodPost, "/groups/"+f.group.ID+"/invites", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created createdEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(f, f.owner.ID, http.MethodDelete, "/groups/"+f.group.ID+"/invites/"+created.Data.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(f, f.guest.ID, http.MethodPost, "/invites", `{"inviteCode":"`+created.Data.InviteCode+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
