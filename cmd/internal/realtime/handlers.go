package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"huddle/cmd/identity"
	v1 "huddle/shared/contracts/realtime/v1"
)

var errEmptyPayload = errors.New("realtime: empty payload")

// dispatch runs one inbound event. Every path answers with exactly one ack.
func (g *WSGateway) dispatch(ctx context.Context, cs *ConnectionSession, env v1.Envelope) {
	start := time.Now()
	ok := false

	switch env.Type {
	case v1.TypeSendChatMessage:
		ok = g.handleSendChatMessage(ctx, cs, env)
	case v1.TypeGetOnlineStatus:
		ok = g.handleGetOnlineStatus(cs, env)
	case v1.TypeChangeOnlineStatus:
		ok = g.handleChangeOnlineStatus(cs, env)
	case v1.TypeUpdateServerList:
		ok = g.handleUpdateServerList(ctx, cs, env)
	case v1.TypeFetchChatHistory:
		ok = g.handleFetchChatHistory(ctx, cs, env)
	default:
		g.ack(cs.Client(), env.ID, false, nil)
	}

	g.log.Debug("ws.event",
		"session_id", cs.Client().SessionID,
		"type", env.Type,
		"ok", ok,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func decodePayload(env v1.Envelope, dst any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return errEmptyPayload
	}
	return json.Unmarshal(env.Payload, dst)
}

// handleSendChatMessage stores a message in the channel behind roomId and relays
// it to the rest of the room. Rooms outside the session's map are refused.
func (g *WSGateway) handleSendChatMessage(ctx context.Context, cs *ConnectionSession, env v1.Envelope) bool {
	client := cs.Client()

	var p v1.SendChatMessagePayload
	if err := decodePayload(env, &p); err != nil {
		g.ack(client, env.ID, false, nil)
		return false
	}

	target, ok := cs.Lookup(p.RoomID)
	if !ok || target.ChannelID == "" {
		g.log.Info("ws.chat.unknown_room", "session_id", client.SessionID, "room_id", p.RoomID)
		g.ack(client, env.ID, false, nil)
		return false
	}

	text := g.sanitize(p.Text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageChars {
		g.ack(client, env.ID, false, nil)
		return false
	}

	clientID := p.ClientID
	if clientID == "" {
		// Without a client id a retry cannot be recognised; fall back to the envelope id.
		clientID = env.ID
	}

	res, err := g.store.AppendMessage(ctx, AppendMessageInput{
		ChannelID:   target.ChannelID,
		GroupID:     target.GroupID,
		ClientMsgID: clientID,
		AuthorID:    client.UserID,
		Text:        text,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		g.log.Warn("ws.chat.append.fail", "session_id", client.SessionID, "channel_id", target.ChannelID, "err", err)
		g.ack(client, env.ID, false, nil)
		return false
	}

	msg := chatPayload(res.Stored, p.RoomID, toWireSummary(cs.User().Summary()))
	if !res.Duplicated {
		g.bc.Publish(p.RoomID, v1.TypeChatMessage, msg, client.SessionID)
	}
	g.ack(client, env.ID, true, msg)
	return true
}

// handleGetOnlineStatus lists connected, non-Offline members of a room the caller belongs to.
func (g *WSGateway) handleGetOnlineStatus(cs *ConnectionSession, env v1.Envelope) bool {
	var p v1.GetOnlineStatusPayload
	if err := decodePayload(env, &p); err != nil {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}
	if _, ok := cs.Lookup(p.RoomID); !ok {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}
	g.ack(cs.Client(), env.ID, true, g.coord.OnlineStatus(p.RoomID))
	return true
}

func (g *WSGateway) handleChangeOnlineStatus(cs *ConnectionSession, env v1.Envelope) bool {
	var p v1.ChangeOnlineStatusPayload
	if err := decodePayload(env, &p); err != nil {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}
	status, err := g.coord.ChangePresence(cs, p.OnlineStatus)
	if err != nil {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}
	g.ack(cs.Client(), env.ID, true, v1.ChangeOnlineStatusPayload{OnlineStatus: string(status)})
	return true
}

func (g *WSGateway) handleUpdateServerList(ctx context.Context, cs *ConnectionSession, env v1.Envelope) bool {
	if err := g.coord.Resync(ctx, cs); err != nil {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}
	g.ack(cs.Client(), env.ID, true, nil)
	return true
}

func (g *WSGateway) handleFetchChatHistory(ctx context.Context, cs *ConnectionSession, env v1.Envelope) bool {
	var p v1.FetchChatHistoryPayload
	if err := decodePayload(env, &p); err != nil {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}
	target, ok := cs.Lookup(p.RoomID)
	if !ok || target.ChannelID == "" {
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}

	res, err := g.store.FetchHistory(ctx, FetchHistoryInput{
		ChannelID: target.ChannelID,
		AfterSeq:  p.AfterSeq,
		Limit:     p.Limit,
	})
	if err != nil {
		g.log.Warn("ws.history.fail", "session_id", cs.Client().SessionID, "channel_id", target.ChannelID, "err", err)
		g.ack(cs.Client(), env.ID, false, nil)
		return false
	}

	authors := g.resolveAuthors(ctx, res.Messages)
	out := v1.ChatHistoryPayload{
		RoomID:   p.RoomID,
		Messages: make([]v1.ChatMessagePayload, 0, len(res.Messages)),
		HasMore:  res.HasMore,
	}
	for _, m := range res.Messages {
		out.Messages = append(out.Messages, chatPayload(m, p.RoomID, authors[m.AuthorID]))
	}
	g.ack(cs.Client(), env.ID, true, out)
	return true
}

// resolveAuthors loads each distinct author once. Unknown authors keep only their id.
func (g *WSGateway) resolveAuthors(ctx context.Context, msgs []StoredMessage) map[string]v1.UserSummary {
	out := make(map[string]v1.UserSummary)
	for _, m := range msgs {
		if _, done := out[m.AuthorID]; done {
			continue
		}
		u, err := g.users.UserByID(ctx, m.AuthorID)
		if err != nil {
			if !errors.Is(err, identity.ErrNotFound) {
				g.log.Warn("ws.history.author.fail", "user_id", m.AuthorID, "err", err)
			}
			out[m.AuthorID] = v1.UserSummary{ID: m.AuthorID}
			continue
		}
		out[m.AuthorID] = toWireSummary(u.Summary())
	}
	return out
}

func chatPayload(m StoredMessage, roomID string, author v1.UserSummary) v1.ChatMessagePayload {
	return v1.ChatMessagePayload{
		ID:        m.ServerMsgID,
		ClientID:  m.ClientMsgID,
		RoomID:    roomID,
		GroupID:   m.GroupID,
		ChannelID: m.ChannelID,
		Seq:       m.Seq,
		Author:    author,
		Text:      m.Text,
		PostedAt:  m.PostedAt,
	}
}
