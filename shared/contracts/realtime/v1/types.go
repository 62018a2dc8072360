// Package v1 defines the Huddle realtime protocol v1 contract.
//
// This package stays dependency-light so clients can share it with the server.
// Event type names are wire-stable and match the existing web client.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Inbound events (client -> server). Each is acknowledged with TypeAck carrying the same id.
const (
	TypeSendChatMessage    = "send chat message"
	TypeGetOnlineStatus    = "get online status"
	TypeChangeOnlineStatus = "change online status"
	TypeUpdateServerList   = "update server list"
	TypeFetchChatHistory   = "fetch chat history"
)

// Outbound events (server -> client).
const (
	TypeAck                 = "ack"
	TypeChatMessage         = "chat message"
	TypeOnlineStatusChanged = "online status changed"
	TypeUserConnected       = "user connected"
	TypeUserJoinedGroup     = "user joined group"
	TypeUserLeftGroup       = "user left group"
	TypeGroupUpdated        = "group updated"
	TypeGroupDeleted        = "group deleted"
	TypeUserUpdated         = "user updated"
	TypeAuthenticationError = "authentication error"
	TypeError               = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsInbound reports whether typ may be sent by a client.
func IsInbound(typ string) bool {
	switch typ {
	case TypeSendChatMessage,
		TypeGetOnlineStatus,
		TypeChangeOnlineStatus,
		TypeUpdateServerList,
		TypeFetchChatHistory:
		return true
	default:
		return false
	}
}

func isOutbound(typ string) bool {
	switch typ {
	case TypeAck,
		TypeChatMessage,
		TypeOnlineStatusChanged,
		TypeUserConnected,
		TypeUserJoinedGroup,
		TypeUserLeftGroup,
		TypeGroupUpdated,
		TypeGroupDeleted,
		TypeUserUpdated,
		TypeAuthenticationError,
		TypeError:
		return true
	default:
		return false
	}
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	if !IsInbound(e.Type) && !isOutbound(e.Type) {
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	if IsInbound(e.Type) && strings.TrimSpace(e.ID) == "" {
		return errors.New("missing field: id")
	}
	return nil
}

// ---- Payloads ----

// UserSummary is the public projection of a user.
type UserSummary struct {
	ID         string `json:"_id"`
	Username   string `json:"username"`
	ProfileImg string `json:"profileImg"`
}

// AckPayload answers an inbound event. Data is event-specific and may be null.
type AckPayload struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// SendChatMessagePayload posts a message into the channel behind RoomID.
type SendChatMessagePayload struct {
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId"`
	Text     string `json:"text"`
}

// ChatMessagePayload is a stored chat message as seen by clients.
type ChatMessagePayload struct {
	ID        string      `json:"_id"`
	ClientID  string      `json:"clientId"`
	RoomID    string      `json:"roomId"`
	GroupID   string      `json:"groupId"`
	ChannelID string      `json:"channelId"`
	Seq       int64       `json:"seq"`
	Author    UserSummary `json:"author"`
	Text      string      `json:"text"`
	PostedAt  time.Time   `json:"postedAt"`
}

// GetOnlineStatusPayload asks for the presence of connected members of a room.
type GetOnlineStatusPayload struct {
	RoomID string `json:"roomId"`
}

// OnlineStatusEntry is one connected member's presence.
type OnlineStatusEntry struct {
	ID           string `json:"_id"`
	OnlineStatus string `json:"onlineStatus"`
}

// ChangeOnlineStatusPayload requests a presence change.
type ChangeOnlineStatusPayload struct {
	OnlineStatus string `json:"onlineStatus"`
}

// OnlineStatusChangedPayload announces a user's presence to shared rooms.
type OnlineStatusChangedPayload struct {
	UserID       string `json:"userId"`
	OnlineStatus string `json:"onlineStatus"`
}

// UserConnectedPayload announces a (re)synced user to shared rooms.
type UserConnectedPayload struct {
	ID           string `json:"_id"`
	OnlineStatus string `json:"onlineStatus"`
}

// MembershipPayload accompanies user joined group and user left group.
type MembershipPayload struct {
	User    UserSummary `json:"user"`
	GroupID string      `json:"groupId"`
}

// GroupPayload accompanies group updated and group deleted.
type GroupPayload struct {
	GroupID string `json:"groupId"`
}

// UserUpdatedPayload carries a changed public profile.
type UserUpdatedPayload struct {
	User UserSummary `json:"user"`
}

// FetchChatHistoryPayload requests a history window for a channel room.
type FetchChatHistoryPayload struct {
	RoomID   string `json:"roomId"`
	AfterSeq *int64 `json:"afterSeq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ChatHistoryPayload is the ack data for a history fetch.
type ChatHistoryPayload struct {
	RoomID   string               `json:"roomId"`
	Messages []ChatMessagePayload `json:"messages"`
	HasMore  bool                 `json:"hasMore"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
