package realtime

import (
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"huddle/cmd/identity"
	"huddle/cmd/internal/groups"
)

// RoomTarget is what a room stands for. ChannelID is empty for a group's own room.
type RoomTarget struct {
	GroupID   string
	ChannelID string
}

// presenceSeq orders presence changes across all sessions of the process.
var presenceSeq atomic.Uint64

// ConnectionSession is the per-connection state: user snapshot, presence and room map.
//
// Connect and resync hold build for their whole duration so a second resync
// queues behind the first and a room map is never half-applied.
type ConnectionSession struct {
	client *Client
	build  *semaphore.Weighted

	mu         sync.RWMutex
	user       identity.User
	presence   identity.OnlineStatus
	presenceAt uint64
	rooms      map[string]RoomTarget
	closed     bool

	// epoch counts drops; dropped records the epoch at which each room was
	// dropped so a build that read memberships earlier cannot re-add it.
	epoch   uint64
	dropped map[string]uint64
}

// NewConnectionSession wraps client with an empty session.
func NewConnectionSession(client *Client) *ConnectionSession {
	return &ConnectionSession{
		client:   client,
		build:    semaphore.NewWeighted(1),
		presence: identity.StatusOffline,
		rooms:    map[string]RoomTarget{},
	}
}

// Client returns the underlying connection.
func (s *ConnectionSession) Client() *Client { return s.client }

// User returns the user snapshot taken at the last build.
func (s *ConnectionSession) User() identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Presence returns the presence currently broadcast for this connection.
func (s *ConnectionSession) Presence() identity.OnlineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence
}

// Rooms returns the joined room ids in a stable order.
func (s *ConnectionSession) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRooms(s.rooms)
}

// Lookup resolves a room id to its group and channel.
// The messaging path uses it because inbound chat events carry only a room id.
func (s *ConnectionSession) Lookup(roomID string) (RoomTarget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rooms[roomID]
	return t, ok
}

// presenceStamp returns the presence with its change sequence; a higher
// sequence was set later.
func (s *ConnectionSession) presenceStamp() (identity.OnlineStatus, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence, s.presenceAt
}

func (s *ConnectionSession) setPresence(p identity.OnlineStatus) {
	s.mu.Lock()
	s.presence = p
	s.presenceAt = presenceSeq.Add(1)
	s.mu.Unlock()
}

// buildEpoch is read before a build loads memberships and handed back to replace.
func (s *ConnectionSession) buildEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// drop removes roomIDs from the room map and returns the ones it held.
func (s *ConnectionSession) drop(roomIDs ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.dropped == nil {
		s.dropped = make(map[string]uint64)
	}
	var gone []string
	for _, id := range roomIDs {
		s.dropped[id] = s.epoch
		if _, ok := s.rooms[id]; ok {
			delete(s.rooms, id)
			gone = append(gone, id)
		}
	}
	return gone
}

// replace swaps in a new snapshot and returns the rooms to leave and to join.
// since is the buildEpoch taken before rooms was computed; rooms dropped after
// it are left out.
func (s *ConnectionSession) replace(user identity.User, presence identity.OnlineStatus, rooms map[string]RoomTarget, since uint64) (stale, fresh []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, false
	}
	for id, at := range s.dropped {
		if at > since {
			delete(rooms, id)
		} else {
			delete(s.dropped, id)
		}
	}
	for id := range s.rooms {
		if _, keep := rooms[id]; !keep {
			stale = append(stale, id)
		}
	}
	for id := range rooms {
		if _, had := s.rooms[id]; !had {
			fresh = append(fresh, id)
		}
	}
	s.user = user
	s.presence = presence
	s.presenceAt = presenceSeq.Add(1)
	s.rooms = rooms
	sort.Strings(stale)
	sort.Strings(fresh)
	return stale, fresh, true
}

// close marks the session torn down and returns its rooms and last presence.
func (s *ConnectionSession) close() ([]string, identity.OnlineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return sortedRooms(s.rooms), s.presence
}

// RoomsFor maps every room of gs to its target: one per group and one per channel.
func RoomsFor(gs []groups.Group) map[string]RoomTarget {
	out := make(map[string]RoomTarget)
	for _, g := range gs {
		if g.RoomID != "" {
			out[g.RoomID] = RoomTarget{GroupID: g.ID}
		}
		for _, c := range g.Channels {
			if c.RoomID != "" {
				out[c.RoomID] = RoomTarget{GroupID: g.ID, ChannelID: c.ID}
			}
		}
	}
	return out
}

func sortedRooms(m map[string]RoomTarget) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
