package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"huddle/cmd/identity"
	"huddle/cmd/internal/groups"
	v1 "huddle/shared/contracts/realtime/v1"
)

// ErrInvalidPresence is returned for a presence value outside the enum.
var ErrInvalidPresence = errors.New("realtime: invalid online status")

// UserReader loads users by id.
type UserReader interface {
	UserByID(ctx context.Context, id string) (identity.User, error)
}

// MembershipReader lists a user's groups.
type MembershipReader interface {
	GroupsForUser(ctx context.Context, userID string) ([]groups.Group, error)
}

// PresenceCoordinator owns the lifecycle of ConnectionSessions.
// It reads membership but never changes it.
type PresenceCoordinator struct {
	log     *slog.Logger
	hub     *Hub
	bc      *Broadcaster
	users   UserReader
	members MembershipReader

	mu       sync.RWMutex
	sessions map[string]*ConnectionSession // session id -> session
}

// NewPresenceCoordinator wires a coordinator.
func NewPresenceCoordinator(log *slog.Logger, hub *Hub, bc *Broadcaster, users UserReader, members MembershipReader) *PresenceCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceCoordinator{
		log:      log,
		hub:      hub,
		bc:       bc,
		users:    users,
		members:  members,
		sessions: make(map[string]*ConnectionSession),
	}
}

// OnConnect builds the session for an authenticated connection and announces
// the user to every joined room unless the stored preference is Offline.
func (p *PresenceCoordinator) OnConnect(ctx context.Context, cs *ConnectionSession) error {
	if err := cs.build.Acquire(ctx, 1); err != nil {
		return err
	}
	defer cs.build.Release(1)

	p.mu.Lock()
	p.sessions[cs.client.SessionID] = cs
	p.mu.Unlock()

	if err := p.buildSession(ctx, cs); err != nil {
		return err
	}

	if presence := cs.Presence(); presence != identity.StatusOffline {
		p.bc.AnnouncePresence(cs.Rooms(), cs.client.UserID, presence)
	}
	p.log.Info("presence.connect", "session_id", cs.client.SessionID, "user_id", cs.client.UserID, "rooms", len(cs.Rooms()))
	return nil
}

// Resync re-reads the user and memberships and replaces the session.
// Concurrent calls on one connection queue behind each other.
func (p *PresenceCoordinator) Resync(ctx context.Context, cs *ConnectionSession) error {
	if err := cs.build.Acquire(ctx, 1); err != nil {
		return err
	}
	defer cs.build.Release(1)

	if err := p.buildSession(ctx, cs); err != nil {
		p.log.Info("presence.resync.fail", "session_id", cs.client.SessionID, "err", err)
		return err
	}

	if presence := cs.Presence(); presence != identity.StatusOffline {
		p.bc.AnnounceUserConnected(cs.Rooms(), cs.client.UserID, presence, cs.client.SessionID)
	}
	return nil
}

// buildSession derives presence from the stored preference, joins one room per
// group and one per channel, and leaves rooms the user no longer belongs to.
// Callers hold cs.build.
func (p *PresenceCoordinator) buildSession(ctx context.Context, cs *ConnectionSession) error {
	var (
		user identity.User
		gs   []groups.Group
	)
	since := cs.buildEpoch()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		u, err := p.users.UserByID(egCtx, cs.client.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		user = u
		return nil
	})
	eg.Go(func() error {
		out, err := p.members.GroupsForUser(egCtx, cs.client.UserID)
		if err != nil {
			return fmt.Errorf("load memberships: %w", err)
		}
		gs = out
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	stale, fresh, ok := cs.replace(user, user.PreferredStatus(), RoomsFor(gs), since)
	if !ok {
		return errors.New("realtime: session closed")
	}
	p.hub.Join(cs.client, fresh...)
	p.hub.Leave(cs.client.SessionID, stale...)
	return nil
}

// ChangePresence validates next, stores it and announces it to every joined room.
func (p *PresenceCoordinator) ChangePresence(cs *ConnectionSession, next string) (identity.OnlineStatus, error) {
	status, ok := identity.ParseOnlineStatus(next)
	if !ok {
		return "", ErrInvalidPresence
	}
	cs.setPresence(status)
	p.bc.AnnouncePresence(cs.Rooms(), cs.client.UserID, status)
	return status, nil
}

// OnDisconnect announces Offline unless already Offline, then leaves all rooms.
func (p *PresenceCoordinator) OnDisconnect(cs *ConnectionSession) {
	// Wait for an in-flight build so it cannot rejoin rooms after teardown.
	_ = cs.build.Acquire(context.Background(), 1)
	defer cs.build.Release(1)

	rooms, presence := cs.close()

	p.mu.Lock()
	delete(p.sessions, cs.client.SessionID)
	p.mu.Unlock()

	if presence != identity.StatusOffline {
		p.bc.AnnouncePresence(rooms, cs.client.UserID, identity.StatusOffline)
	}
	p.hub.Leave(cs.client.SessionID, rooms...)
	p.log.Info("presence.disconnect", "session_id", cs.client.SessionID, "user_id", cs.client.UserID)
}

// OnlineStatus lists connected members of roomID whose presence is not Offline.
// A user with several connections is listed once, with the presence most
// recently set on any of them, which is also the last one broadcast.
func (p *PresenceCoordinator) OnlineStatus(roomID string) []v1.OnlineStatusEntry {
	type stamped struct {
		status identity.OnlineStatus
		at     uint64
	}
	latest := map[string]stamped{}

	for _, c := range p.hub.Members(roomID) {
		p.mu.RLock()
		cs := p.sessions[c.SessionID]
		p.mu.RUnlock()
		if cs == nil {
			continue
		}
		status, at := cs.presenceStamp()
		if cur, ok := latest[c.UserID]; ok && cur.at > at {
			continue
		}
		latest[c.UserID] = stamped{status: status, at: at}
	}

	out := []v1.OnlineStatusEntry{}
	for userID, st := range latest {
		if st.status == identity.StatusOffline {
			continue
		}
		out = append(out, v1.OnlineStatusEntry{ID: userID, OnlineStatus: string(st.status)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AnnounceMembershipChange forwards to the Broadcaster.
func (p *PresenceCoordinator) AnnounceMembershipChange(roomID, event string, payload any) {
	p.bc.AnnounceMembershipChange(roomID, event, payload)
}

// EvictMember removes roomIDs from every live session of userID and leaves
// the matching hub rooms, so chat to them is refused without a resync.
func (p *PresenceCoordinator) EvictMember(userID string, roomIDs ...string) {
	for _, cs := range p.sessionsOf(userID) {
		gone := cs.drop(roomIDs...)
		p.hub.Leave(cs.client.SessionID, gone...)
		if len(gone) > 0 {
			p.log.Info("presence.evict", "session_id", cs.client.SessionID, "user_id", userID, "rooms", len(gone))
		}
	}
}

// DissolveRooms removes roomIDs from every live session and the hub.
func (p *PresenceCoordinator) DissolveRooms(roomIDs ...string) {
	for _, cs := range p.sessionsOf("") {
		cs.drop(roomIDs...)
	}
	p.bc.DissolveRooms(roomIDs...)
}

// sessionsOf snapshots the sessions of userID, or all sessions when userID is empty.
func (p *PresenceCoordinator) sessionsOf(userID string) []*ConnectionSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ConnectionSession, 0, len(p.sessions))
	for _, cs := range p.sessions {
		if userID == "" || cs.client.UserID == userID {
			out = append(out, cs)
		}
	}
	return out
}
