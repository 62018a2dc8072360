package realtime

import (
	"log/slog"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/metrics"
	v1 "huddle/shared/contracts/realtime/v1"
)

// Broadcaster fans events out to rooms.
//
// Every method is fire-and-forget: no acknowledgement and no retry. State is
// rebuilt from persisted membership on the next resync or reconnect.
type Broadcaster struct {
	log     *slog.Logger
	hub     *Hub
	metrics *metrics.Metrics
}

// NewBroadcaster constructs a Broadcaster over hub.
func NewBroadcaster(log *slog.Logger, hub *Hub, m *metrics.Metrics) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{log: log, hub: hub, metrics: m}
}

// AnnouncePresence emits online status changed to rooms, including the sender.
func (b *Broadcaster) AnnouncePresence(rooms []string, userID string, status identity.OnlineStatus) {
	b.emit(v1.TypeOnlineStatusChanged, v1.OnlineStatusChangedPayload{
		UserID:       userID,
		OnlineStatus: string(status),
	}, "", rooms...)
}

// AnnounceUserConnected emits user connected to rooms, skipping exceptSession.
func (b *Broadcaster) AnnounceUserConnected(rooms []string, userID string, status identity.OnlineStatus, exceptSession string) {
	b.emit(v1.TypeUserConnected, v1.UserConnectedPayload{
		ID:           userID,
		OnlineStatus: string(status),
	}, exceptSession, rooms...)
}

// AnnounceMembershipChange emits event on roomID so connected clients see
// joins, leaves and group edits without reconnecting.
func (b *Broadcaster) AnnounceMembershipChange(roomID, event string, payload any) {
	b.emit(event, payload, "", roomID)
}

// AnnounceUserUpdated emits user updated to rooms.
func (b *Broadcaster) AnnounceUserUpdated(rooms []string, summary identity.UserSummary) {
	b.emit(v1.TypeUserUpdated, v1.UserUpdatedPayload{User: toWireSummary(summary)}, "", rooms...)
}

// DissolveRooms drops rooms whose group no longer exists.
func (b *Broadcaster) DissolveRooms(roomIDs ...string) {
	b.hub.Dissolve(roomIDs...)
}

// Publish emits event to roomID, skipping exceptSession, and returns the recipient count.
func (b *Broadcaster) Publish(roomID, event string, payload any, exceptSession string) int {
	return b.emit(event, payload, exceptSession, roomID)
}

func (b *Broadcaster) emit(event string, payload any, exceptSession string, rooms ...string) int {
	if len(rooms) == 0 {
		return 0
	}
	env, err := newEnvelope(event, "", payload, time.Now().UTC())
	if err != nil {
		b.log.Warn("broadcast.encode.fail", "event", event, "err", err)
		return 0
	}
	n := b.hub.Broadcast(env, exceptSession, rooms...)
	b.metrics.Broadcast(event)
	b.log.Debug("broadcast", "event", event, "rooms", len(rooms), "recipients", n)
	return n
}

func toWireSummary(s identity.UserSummary) v1.UserSummary {
	return v1.UserSummary{ID: s.ID, Username: s.Username, ProfileImg: s.ProfileImg}
}
