package realtime

import (
	"log/slog"
	"sync"

	v1 "huddle/shared/contracts/realtime/v1"
)

// Hub owns the in-memory rooms of this process.
// Persistence lives behind MessageStore; membership truth lives in groups.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Join adds client to each room, creating rooms on first use.
func (h *Hub) Join(client *Client, roomIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range roomIDs {
		if id == "" {
			continue
		}
		r, ok := h.rooms[id]
		if !ok {
			r = NewRoom(h.log, id)
			h.rooms[id] = r
		}
		r.Join(client)
	}
}

// Leave removes sessionID from each room and drops rooms that become empty.
func (h *Hub) Leave(sessionID string, roomIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range roomIDs {
		r, ok := h.rooms[id]
		if !ok {
			continue
		}
		if r.Leave(sessionID) == 0 {
			delete(h.rooms, id)
		}
	}
}

// Dissolve forgets the rooms entirely. Members keep their connections.
func (h *Hub) Dissolve(roomIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range roomIDs {
		delete(h.rooms, id)
	}
}

// Members returns the connections currently in roomID.
func (h *Hub) Members(roomID string) []*Client {
	h.mu.RLock()
	r := h.rooms[roomID]
	h.mu.RUnlock()
	return r.Members()
}

// InRoom reports whether sessionID is a member of roomID.
func (h *Hub) InRoom(roomID, sessionID string) bool {
	for _, c := range h.Members(roomID) {
		if c.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Broadcast delivers env once to every connection in any of roomIDs, skipping
// exceptSession. It never blocks: full queues drop the envelope.
// It returns the number of connections the envelope was queued for.
func (h *Hub) Broadcast(env v1.Envelope, exceptSession string, roomIDs ...string) int {
	seen := make(map[string]struct{})
	sent := 0

	h.mu.RLock()
	rooms := make([]*Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		if r, ok := h.rooms[id]; ok {
			rooms = append(rooms, r)
		}
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		for _, m := range r.Members() {
			if m == nil || m.SessionID == exceptSession {
				continue
			}
			if _, dup := seen[m.SessionID]; dup {
				continue
			}
			seen[m.SessionID] = struct{}{}
			if m.Offer(env) {
				sent++
			}
		}
	}
	return sent
}
