package groups

import "time"

// Channel is a text channel inside a group.
type Channel struct {
	ID     string
	Name   string
	RoomID string
}

// Group is a server with its channels, ordered by position.
type Group struct {
	ID        string
	Name      string
	OwnerID   string
	RoomID    string
	Channels  []Channel
	CreatedAt time.Time
}

// Rooms returns the group's room followed by one room per channel.
func (g Group) Rooms() []string {
	out := make([]string, 0, 1+len(g.Channels))
	if g.RoomID != "" {
		out = append(out, g.RoomID)
	}
	for _, c := range g.Channels {
		if c.RoomID != "" {
			out = append(out, c.RoomID)
		}
	}
	return out
}

// Channel looks up a channel by id.
func (g Group) Channel(id string) (Channel, bool) {
	for _, c := range g.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

func (g Group) clone() Group {
	cp := g
	cp.Channels = append([]Channel(nil), g.Channels...)
	return cp
}
