package realtime

import (
	"context"
	"log/slog"

	"huddle/cmd/identity"
)

// ProfileAnnouncer tells a user's groups that their public profile changed.
type ProfileAnnouncer struct {
	log     *slog.Logger
	members MembershipReader
	bc      *Broadcaster
}

func NewProfileAnnouncer(log *slog.Logger, members MembershipReader, bc *Broadcaster) *ProfileAnnouncer {
	if log == nil {
		log = slog.Default()
	}
	return &ProfileAnnouncer{log: log, members: members, bc: bc}
}

// UserUpdated emits user updated once to every group room the user belongs to.
// Lookup failures are logged; the profile change itself has already been saved.
func (a *ProfileAnnouncer) UserUpdated(ctx context.Context, u identity.User) {
	if a == nil || a.members == nil || a.bc == nil {
		return
	}
	gs, err := a.members.GroupsForUser(ctx, u.ID)
	if err != nil {
		a.log.Warn("ws.profile.announce.fail", "user_id", u.ID, "err", err)
		return
	}

	rooms := make([]string, 0, len(gs))
	for _, g := range gs {
		if g.RoomID != "" {
			rooms = append(rooms, g.RoomID)
		}
	}
	if len(rooms) == 0 {
		return
	}
	a.bc.AnnounceUserUpdated(rooms, u.Summary())
}
