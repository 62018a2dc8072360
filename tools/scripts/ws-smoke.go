// Package main is a CI-friendly end-to-end smoke test for a running huddle server.
//
// It registers and logs in two users, creates a group, invites the second
// user, connects both over WebSocket and checks chat fanout, history and
// retry dedupe by clientId.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	subprotocol  = "huddle.realtime.v1"
	maxReadBytes = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	http *http.Client
	base string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

type groupReply struct {
	ID       string `json:"_id"`
	Channels []struct {
		RoomID string `json:"roomId"`
	} `json:"channels"`
}

type inviteReply struct {
	Data struct {
		InviteCode string `json:"inviteCode"`
	} `json:"data"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		password = flag.String("password", "smoke-test-password", "Password for the generated users")
		text     = flag.String("text", "hello huddle 👋", "Message text to send")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	run := uuid.NewString()[:8]

	a := newClient("A", *baseURL)
	b := newClient("B", *baseURL)
	a.mustSignIn(fmt.Sprintf("smoke-a-%s@example.com", run), *password)
	b.mustSignIn(fmt.Sprintf("smoke-b-%s@example.com", run), *password)

	var g groupReply
	a.mustDo(http.MethodPost, "/groups", map[string]any{"name": "smoke " + run, "channels": []string{"general"}}, http.StatusCreated, &g)
	if g.ID == "" || len(g.Channels) == 0 {
		fatalf("create group: missing id or channels")
	}
	room := g.Channels[0].RoomID

	var inv inviteReply
	a.mustDo(http.MethodPost, "/groups/"+g.ID+"/invites", map[string]any{"maxUses": 1}, http.StatusCreated, &inv)
	b.mustDo(http.MethodPost, "/invites", map[string]any{"inviteCode": inv.Data.InviteCode}, http.StatusOK, nil)

	a.mustConnect(root, *origin, *timeout)
	defer closeWS(a.conn)
	b.mustConnect(root, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: group=%s room=%s\n", g.ID, room)
	}

	clientID := fmt.Sprintf("cmsg-%d", time.Now().UnixNano())
	sent := a.mustSend(root, room, clientID, *text, *timeout)

	got := b.mustReadUntilType(root, v1.TypeChatMessage, *timeout)
	var relayed v1.ChatMessagePayload
	if err := json.Unmarshal(got.Payload, &relayed); err != nil {
		fatalf("decode chat message: %v", err)
	}
	if relayed.ID != sent.ID || relayed.Text != *text || relayed.ClientID != clientID {
		fatalf("relayed message mismatch: got=%+v want id=%s", relayed, sent.ID)
	}

	hist := b.mustHistory(root, room, *timeout)
	if len(hist.Messages) == 0 || hist.Messages[len(hist.Messages)-1].ID != sent.ID {
		fatalf("history does not end with the sent message")
	}

	again := a.mustSend(root, room, clientID, *text, *timeout)
	if again.Seq != sent.Seq || again.ID != sent.ID {
		fatalf("dedupe: first=%d/%s second=%d/%s", sent.Seq, sent.ID, again.Seq, again.ID)
	}
	b.mustNotSee(root, v1.TypeChatMessage, 1200*time.Millisecond)

	fmt.Printf("OK: group=%s room=%s seq=%d msg_id=%s\n", g.ID, room, sent.Seq, sent.ID)
}

func newClient(name, base string) *smokeClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookiejar: %v", err)
	}
	return &smokeClient{
		name:  name,
		http:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
		base:  strings.TrimRight(base, "/"),
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
}

func (c *smokeClient) mustSignIn(email, password string) {
	creds := map[string]string{"email": email, "password": password}
	c.mustDo(http.MethodPost, "/auth/register", creds, http.StatusOK, nil)
	c.mustDo(http.MethodPost, "/auth/login", creds, http.StatusOK, nil)
}

func (c *smokeClient) mustDo(method, path string, body any, wantStatus int, out any) {
	raw, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal %s %s: %v", method, path, err)
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(raw))
	if err != nil {
		fatalf("request %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s (%s): %v", method, path, c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != wantStatus {
		fatalf("%s %s (%s): status=%d want=%d body=%s", method, path, c.name, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fatalf("%s %s (%s): decode: %v", method, path, c.name, err)
		}
	}
}

func (c *smokeClient) mustConnect(parent context.Context, origin string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(c.base)
	if err != nil {
		fatalf("parse base: %v", err)
	}

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		h.Add("Cookie", ck.String())
	}

	wsURL := *u
	wsURL.Scheme = "ws"
	if u.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/ws"

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", c.name, err)
	}
	if got := conn.Subprotocol(); got != "" && got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)
	c.conn = conn
	c.startReadLoop()
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) mustSend(parent context.Context, room, clientID, text string, stepTimeout time.Duration) v1.ChatMessagePayload {
	id := uuid.NewString()
	c.mustWrite(parent, v1.TypeSendChatMessage, id, v1.SendChatMessagePayload{RoomID: room, ClientID: clientID, Text: text}, stepTimeout)

	var msg v1.ChatMessagePayload
	c.mustAck(parent, id, &msg, stepTimeout)
	if msg.ID == "" || msg.Seq <= 0 {
		fatalf("send ack missing id or seq (%s)", c.name)
	}
	return msg
}

func (c *smokeClient) mustHistory(parent context.Context, room string, stepTimeout time.Duration) v1.ChatHistoryPayload {
	id := uuid.NewString()
	c.mustWrite(parent, v1.TypeFetchChatHistory, id, v1.FetchChatHistoryPayload{RoomID: room, Limit: 50}, stepTimeout)

	var hist v1.ChatHistoryPayload
	c.mustAck(parent, id, &hist, stepTimeout)
	return hist
}

func (c *smokeClient) mustAck(parent context.Context, id string, data any, stepTimeout time.Duration) {
	for {
		env := c.mustReadUntilType(parent, v1.TypeAck, stepTimeout)
		if env.ID != id {
			continue
		}
		var ack struct {
			OK   bool            `json:"ok"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(env.Payload, &ack); err != nil {
			fatalf("decode ack (%s): %v", c.name, err)
		}
		if !ack.OK {
			fatalf("ack not ok (%s): id=%s", c.name, id)
		}
		if data != nil {
			if err := json.Unmarshal(ack.Data, data); err != nil {
				fatalf("decode ack data (%s): %v", c.name, err)
			}
		}
		return
	}
}

// mustReadUntilType skips presence chatter and fails on anything else unexpected.
func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			switch env.Type {
			case wantType:
				return env
			case v1.TypeError, v1.TypeAuthenticationError:
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): type=%q code=%q msg=%q", c.name, env.Type, ep.Code, ep.Message)
			case v1.TypeUserConnected, v1.TypeOnlineStatusChanged, v1.TypeUserJoinedGroup:
				continue
			default:
				fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
			}
		}
	}
}

func (c *smokeClient) mustNotSee(parent context.Context, forbidden string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.inbox:
			if !ok {
				return
			}
			if env.Type == forbidden {
				fatalf("unexpected %q (%s)", forbidden, c.name)
			}
		}
	}
}

func (c *smokeClient) mustWrite(parent context.Context, typ, id string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal payload: %v", err)
	}
	b, err := json.Marshal(v1.Envelope{V: v1.Version, Type: typ, ID: id, TS: time.Now().UTC(), Payload: raw})
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
