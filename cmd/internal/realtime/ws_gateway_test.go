package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/groups"
	v1 "huddle/shared/contracts/realtime/v1"
)

type gatewayFixture struct {
	*presenceFixture
	codec *session.Codec
	srv   *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	f := &gatewayFixture{presenceFixture: newPresenceFixture()}

	cfg := session.DefaultConfig()
	cfg.SigningSecret = []byte("gateway-test-secret")

	var err error
	f.codec, err = session.NewCodec(cfg)
	require.NoError(t, err)
	verifier, err := session.NewVerifier(f.codec, session.NewRefreshPolicy(cfg), session.NewRaceGuard(cfg.LockTTL), f.users)
	require.NoError(t, err)

	gw, err := NewWSGateway(nil, GatewayDeps{
		Verifier:    verifier,
		Cookies:     session.NewCookies(cfg),
		Coordinator: f.coord,
		Broadcaster: f.bc,
		Store:       NewInMemoryStore(),
		Users:       f.users,
	})
	require.NoError(t, err)

	f.srv = httptest.NewServer(gw)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, query string, cookies ...*http.Cookie) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	h := http.Header{}
	h.Set("Origin", f.srv.URL)
	for _, c := range cookies {
		h.Add("Cookie", c.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+query, &websocket.DialOptions{
		HTTPHeader:   h,
		Subprotocols: []string{wsSubprotocolV1},
	})
}

func (f *gatewayFixture) connectAs(t *testing.T, u identity.User) *websocket.Conn {
	t.Helper()

	tok, _, err := f.codec.Sign(u.ID, u.Email, "dev", time.Now())
	require.NoError(t, err)

	conn, _, err := f.dial(t, "", &http.Cookie{Name: session.AccessCookieName, Value: tok})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// readUntil skips envelopes until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(v1.Envelope) bool) v1.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		var env v1.Envelope
		require.NoError(t, wsjson.Read(ctx, conn, &env))
		if match(env) {
			return env
		}
	}
}

func ackFor(id string) func(v1.Envelope) bool {
	return func(e v1.Envelope) bool { return e.Type == v1.TypeAck && e.ID == id }
}

func send(t *testing.T, conn *websocket.Conn, typ, id string, payload any) {
	t.Helper()
	env, err := newEnvelope(typ, id, payload, time.Now().UTC())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, env))
}

func TestGateway_DeniedHandshakeClearsCookies(t *testing.T) {
	f := newGatewayFixture(t)

	conn, resp, err := f.dial(t, "", &http.Cookie{Name: session.RefreshCookieName, Value: "stale"})
	require.NoError(t, err)
	defer conn.CloseNow()

	setCookies := strings.Join(resp.Header.Values("Set-Cookie"), "\n")
	assert.Contains(t, setCookies, session.AccessCookieName+"=;")
	assert.Contains(t, setCookies, session.RefreshCookieName+"=;")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var env v1.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	assert.Equal(t, v1.TypeAuthenticationError, env.Type)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestGateway_ContinuationIsRefused(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := f.dial(t, "?sid=abc")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := http.Header{}
	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader:   h,
		Subprotocols: []string{wsSubprotocolV1},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGateway_ChatAndPresenceFlow(t *testing.T) {
	f := newGatewayFixture(t)
	ada := f.user(t, "ada@example.com", "")
	bob := f.user(t, "bob@example.com", "")
	g := f.group(t, ada.ID, bob.ID)
	room := g.Channels[0].RoomID

	a := f.connectAs(t, ada)
	readUntil(t, a, func(e v1.Envelope) bool { return e.Type == v1.TypeOnlineStatusChanged })

	b := f.connectAs(t, bob)
	readUntil(t, a, func(e v1.Envelope) bool {
		return e.Type == v1.TypeOnlineStatusChanged && decodeAs[v1.OnlineStatusChangedPayload](t, e).UserID == bob.ID
	})

	send(t, a, v1.TypeGetOnlineStatus, "q1", v1.GetOnlineStatusPayload{RoomID: room})
	ack := decodeAs[struct {
		OK   bool                   `json:"ok"`
		Data []v1.OnlineStatusEntry `json:"data"`
	}](t, readUntil(t, a, ackFor("q1")))
	require.True(t, ack.OK)
	assert.Len(t, ack.Data, 2)

	send(t, a, v1.TypeSendChatMessage, "m1", v1.SendChatMessagePayload{
		RoomID:   room,
		ClientID: "c-1",
		Text:     "<b>hello</b> <script>alert(1)</script>bob",
	})
	sent := decodeAs[struct {
		OK   bool                  `json:"ok"`
		Data v1.ChatMessagePayload `json:"data"`
	}](t, readUntil(t, a, ackFor("m1")))
	require.True(t, sent.OK)
	assert.Equal(t, "hello bob", sent.Data.Text)
	assert.Equal(t, ada.ID, sent.Data.Author.ID)
	assert.Equal(t, int64(1), sent.Data.Seq)

	got := decodeAs[v1.ChatMessagePayload](t, readUntil(t, b, func(e v1.Envelope) bool { return e.Type == v1.TypeChatMessage }))
	assert.Equal(t, sent.Data.ID, got.ID)
	assert.Equal(t, room, got.RoomID)

	send(t, b, v1.TypeFetchChatHistory, "h1", v1.FetchChatHistoryPayload{RoomID: room})
	hist := decodeAs[struct {
		OK   bool                  `json:"ok"`
		Data v1.ChatHistoryPayload `json:"data"`
	}](t, readUntil(t, b, ackFor("h1")))
	require.True(t, hist.OK)
	require.Len(t, hist.Data.Messages, 1)
	assert.Equal(t, "ada@example.com", hist.Data.Messages[0].Author.Username)
}

func TestGateway_ChatToForeignRoomIsRefused(t *testing.T) {
	f := newGatewayFixture(t)
	ada := f.user(t, "ada@example.com", "")
	bob := f.user(t, "bob@example.com", "")
	f.group(t, ada.ID)
	foreign := f.group(t, bob.ID)

	a := f.connectAs(t, ada)
	send(t, a, v1.TypeSendChatMessage, "m1", v1.SendChatMessagePayload{
		RoomID:   foreign.Channels[0].RoomID,
		ClientID: "c-1",
		Text:     "hi",
	})
	ack := decodeAs[v1.AckPayload](t, readUntil(t, a, ackFor("m1")))
	assert.False(t, ack.OK)
	assert.Nil(t, ack.Data)
}

func TestGateway_RemovedMemberCannotChat(t *testing.T) {
	f := newGatewayFixture(t)
	ada := f.user(t, "ada@example.com", "")
	bob := f.user(t, "bob@example.com", "")
	g := f.group(t, ada.ID, bob.ID)
	svc := groups.NewService(nil, f.groups, f.users, f.coord)

	a := f.connectAs(t, ada)
	b := f.connectAs(t, bob)
	readUntil(t, b, func(e v1.Envelope) bool {
		return e.Type == v1.TypeOnlineStatusChanged && decodeAs[v1.OnlineStatusChangedPayload](t, e).UserID == bob.ID
	})

	require.NoError(t, svc.Remove(context.Background(), ada.ID, g.ID, bob.ID))
	left := readUntil(t, b, func(e v1.Envelope) bool { return e.Type == v1.TypeUserLeftGroup })
	assert.Equal(t, bob.ID, decodeAs[v1.MembershipPayload](t, left).User.ID)

	send(t, b, v1.TypeSendChatMessage, "m1", v1.SendChatMessagePayload{
		RoomID:   g.Channels[0].RoomID,
		ClientID: "c-1",
		Text:     "still here",
	})
	ack := decodeAs[v1.AckPayload](t, readUntil(t, b, ackFor("m1")))
	assert.False(t, ack.OK)

	// Ada's next ack arrives with no chat message queued ahead of it.
	send(t, a, v1.TypeGetOnlineStatus, "s1", v1.GetOnlineStatusPayload{RoomID: g.RoomID})
	next := readUntil(t, a, func(e v1.Envelope) bool { return e.Type == v1.TypeChatMessage || e.Type == v1.TypeAck })
	assert.Equal(t, v1.TypeAck, next.Type)
}

func TestGateway_UpdateServerListJoinsNewGroup(t *testing.T) {
	f := newGatewayFixture(t)
	ada := f.user(t, "ada@example.com", "")
	bob := f.user(t, "bob@example.com", "")
	joined := f.group(t, bob.ID)

	a := f.connectAs(t, ada)
	b := f.connectAs(t, bob)
	readUntil(t, b, func(e v1.Envelope) bool { return e.Type == v1.TypeOnlineStatusChanged })

	_, err := f.groups.AddMember(context.Background(), joined.ID, ada.ID)
	require.NoError(t, err)

	send(t, a, v1.TypeUpdateServerList, "u1", nil)
	ack := decodeAs[v1.AckPayload](t, readUntil(t, a, ackFor("u1")))
	assert.True(t, ack.OK)

	connected := readUntil(t, b, func(e v1.Envelope) bool { return e.Type == v1.TypeUserConnected })
	assert.Equal(t, ada.ID, decodeAs[v1.UserConnectedPayload](t, connected).ID)
}

func TestGateway_ChangeOnlineStatusValidates(t *testing.T) {
	f := newGatewayFixture(t)
	ada := f.user(t, "ada@example.com", "")
	f.group(t, ada.ID)

	a := f.connectAs(t, ada)

	send(t, a, v1.TypeChangeOnlineStatus, "p1", v1.ChangeOnlineStatusPayload{OnlineStatus: "NAPPING"})
	assert.False(t, decodeAs[v1.AckPayload](t, readUntil(t, a, ackFor("p1"))).OK)

	send(t, a, v1.TypeChangeOnlineStatus, "p2", v1.ChangeOnlineStatusPayload{OnlineStatus: string(identity.StatusAway)})
	assert.True(t, decodeAs[v1.AckPayload](t, readUntil(t, a, ackFor("p2"))).OK)
}

func TestClassifyHandshake(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Equal(t, handshakeNew, classifyHandshake(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?sid=abc&EIO=4", nil)
	assert.Equal(t, handshakeContinuation, classifyHandshake(r))
}

var _ MembershipReader = (*groups.MemoryStore)(nil)
