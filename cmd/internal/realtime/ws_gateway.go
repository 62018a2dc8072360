package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/metrics"
	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "huddle.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32
	wsInboxSize            = 32

	wsDefaultWriteTimeout   = 5 * time.Second
	wsDefaultReadIdle       = 2 * time.Minute
	wsDefaultHandlerTimeout = 10 * time.Second
	wsCloseGrace            = 1 * time.Second

	wsMaxPingFailures = 3

	// continuationParam marks a request that resumes an existing transport session.
	continuationParam = "sid"

	authErrorMessage = "Missing valid client credentials"
)

// GatewayDeps are the collaborators of WSGateway.
type GatewayDeps struct {
	Verifier    *session.Verifier
	Cookies     session.Cookies
	Coordinator *PresenceCoordinator
	Broadcaster *Broadcaster
	Store       MessageStore
	Users       UserReader
	Metrics     *metrics.Metrics
}

// WSGateway is the WebSocket entrypoint for Huddle realtime.
//
// It enforces origin policy, verifies the session on the initial handshake,
// and then runs one reader, one writer, one heartbeat and one dispatcher per
// connection. Inbound events are handled one at a time in arrival order.
type WSGateway struct {
	log *slog.Logger

	verifier *session.Verifier
	cookies  session.Cookies
	coord    *PresenceCoordinator
	bc       *Broadcaster
	store    MessageStore
	users    UserReader
	metrics  *metrics.Metrics
	sanitize func(string) string

	cfg     GatewayConfig
	origins originPolicy
}

// NewWSGateway constructs a gateway from deps and HUDDLE_WS_* settings.
func NewWSGateway(log *slog.Logger, deps GatewayDeps) (*WSGateway, error) {
	return NewWSGatewayWithConfig(log, deps, LoadGatewayConfig())
}

// NewWSGatewayWithConfig constructs a gateway with explicit settings.
func NewWSGatewayWithConfig(log *slog.Logger, deps GatewayDeps, cfg GatewayConfig) (*WSGateway, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Verifier == nil || deps.Coordinator == nil || deps.Broadcaster == nil || deps.Users == nil {
		return nil, errors.New("realtime: gateway requires verifier, coordinator, broadcaster and users")
	}
	if deps.Store == nil {
		deps.Store = NewInMemoryStore()
	}
	cfg = cfg.normalized()

	return &WSGateway{
		log:      log,
		verifier: deps.Verifier,
		cookies:  deps.Cookies,
		coord:    deps.Coordinator,
		bc:       deps.Broadcaster,
		store:    deps.Store,
		users:    deps.Users,
		metrics:  deps.Metrics,
		sanitize: newSanitizer(),
		cfg:      cfg,
		origins:  newOriginPolicy(cfg.OriginRequired, cfg.AllowedOrigins),
	}, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// handshakeKind separates fresh connection attempts from transport continuations.
type handshakeKind uint8

const (
	handshakeNew handshakeKind = iota
	handshakeContinuation
)

// classifyHandshake inspects the request for a continuation marker.
// Only new handshakes run session verification.
func classifyHandshake(r *http.Request) handshakeKind {
	if strings.TrimSpace(r.URL.Query().Get(continuationParam)) != "" {
		return handshakeContinuation
	}
	return handshakeNew
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the realtime loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.origins.check(r.Header.Get("Origin")); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// There is no polling transport to resume; continuations are refused outright.
	if classifyHandshake(r) == handshakeContinuation {
		g.log.Info("ws.reject.continuation", "remote", r.RemoteAddr)
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}

	out := g.verifier.Verify(r.Context(), g.cookies.Read(r))

	// Cookie headers ride on the 101 response: clear on deny, fresh pair after rotation.
	g.cookies.Apply(w.Header(), out)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.origins.acceptPatterns(),
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if !out.Accepted() {
		g.rejectAuth(r.Context(), conn)
		return
	}

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	client := NewClient(out.Identity.UserID, sessionID, g.cfg.SendQueueSize)
	cs := NewConnectionSession(client)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	g.run(ctx, cancel, conn, cs)
}

// rejectAuth tells the client why and closes with policy violation.
func (g *WSGateway) rejectAuth(ctx context.Context, conn *websocket.Conn) {
	env, err := newEnvelope(v1.TypeAuthenticationError, "", v1.ErrorPayload{
		Code:    "unauthenticated",
		Message: authErrorMessage,
	}, time.Now().UTC())
	if err == nil {
		_ = writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout)
	}
	_ = conn.Close(websocket.StatusPolicyViolation, "authentication required")
}

func (g *WSGateway) run(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, cs *ConnectionSession) {
	client := cs.Client()
	sessionID := client.SessionID

	var closeOnce sync.Once

	// shutdown is idempotent and never closes client.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	if err := g.coord.OnConnect(ctx, cs); err != nil {
		g.log.Warn("ws.connect.fail", "session_id", sessionID, "user_id", client.UserID, "err", err)
		g.trySendError(client, "connect_failed", "could not load session")
		shutdown(websocket.StatusInternalError, "session build failed")
		<-writerDone
		g.coord.OnDisconnect(cs)
		return
	}
	g.metrics.ConnectionOpened()
	defer g.metrics.ConnectionClosed()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	inbox := make(chan v1.Envelope, wsInboxSize)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-inbox:
				if !ok {
					return
				}
				hctx, hcancel := context.WithTimeout(ctx, g.cfg.HandlerTimeout)
				g.dispatch(hctx, cs, env)
				hcancel()
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now().UTC()) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}
		if !v1.IsInbound(env.Type) {
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
			continue readLoop
		}

		select {
		case inbox <- env:
		default:
			g.trySendError(client, "busy", "too many pending events")
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-dispatchDone
	<-writerDone

	g.coord.OnDisconnect(cs)

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- send helpers ----

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	env, err := newEnvelope(v1.TypeError, "", v1.ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	if err != nil {
		return
	}
	_ = client.Offer(env)
}

// ack answers request id with {ok, data}.
func (g *WSGateway) ack(client *Client, id string, ok bool, data any) {
	env, err := newEnvelope(v1.TypeAck, id, v1.AckPayload{OK: ok, Data: data}, time.Now().UTC())
	if err != nil {
		g.log.Warn("ws.ack.encode.fail", "session_id", client.SessionID, "err", err)
		return
	}
	if !client.Offer(env) {
		g.log.Info("ws.ack.drop", "session_id", client.SessionID, "id", id)
	}
}
