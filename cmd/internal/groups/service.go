package groups

import (
	"context"
	"errors"
	"log/slog"

	"huddle/cmd/identity"
	v1 "huddle/shared/contracts/realtime/v1"
)

// Notifier pushes membership changes to connected clients.
// Implementations are best-effort and must not block.
//
// EvictMember detaches userID's live connections from roomIDs once the
// membership behind them is gone; DissolveRooms does the same for everyone.
type Notifier interface {
	AnnounceMembershipChange(roomID, event string, payload any)
	EvictMember(userID string, roomIDs ...string)
	DissolveRooms(roomIDs ...string)
}

// UserLookup resolves members for event payloads.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (identity.User, error)
}

type nopNotifier struct{}

func (nopNotifier) AnnounceMembershipChange(string, string, any) {}
func (nopNotifier) EvictMember(string, ...string)                {}
func (nopNotifier) DissolveRooms(...string)                      {}

// Service applies membership changes and announces them.
type Service struct {
	log    *slog.Logger
	store  Store
	users  UserLookup
	notify Notifier
}

// NewService wires a Service. A nil notifier drops announcements.
func NewService(log *slog.Logger, store Store, users UserLookup, notify Notifier) *Service {
	if log == nil {
		log = slog.Default()
	}
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Service{log: log, store: store, users: users, notify: notify}
}

// Store exposes the read side used by the realtime layer.
func (s *Service) Store() Store { return s.store }

// Create makes a group owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID, name string, channels []string) (Group, error) {
	g, err := s.store.CreateGroup(ctx, CreateGroupInput{Name: name, OwnerID: ownerID, Channels: channels})
	if err != nil {
		return Group{}, err
	}
	s.log.Info("groups.create", "group_id", g.ID, "owner_id", ownerID, "channels", len(g.Channels))
	return g, nil
}

// Group loads a group by id.
func (s *Service) Group(ctx context.Context, id string) (Group, error) {
	return s.store.GroupByID(ctx, id)
}

// IsMember reports whether userID belongs to groupID.
func (s *Service) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	return s.store.IsMember(ctx, groupID, userID)
}

// ForUser lists the groups userID belongs to.
func (s *Service) ForUser(ctx context.Context, userID string) ([]Group, error) {
	return s.store.GroupsForUser(ctx, userID)
}

// Join adds userID to groupID and announces it on the group room.
// Joining twice is a no-op without an announcement.
func (s *Service) Join(ctx context.Context, groupID, userID string) (Group, error) {
	g, err := s.store.GroupByID(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	added, err := s.store.AddMember(ctx, groupID, userID)
	if err != nil {
		return Group{}, err
	}
	if added {
		s.announceMember(ctx, g, userID, v1.TypeUserJoinedGroup)
	}
	return g, nil
}

// Leave removes userID from groupID. Owners must delete the group instead.
func (s *Service) Leave(ctx context.Context, groupID, userID string) error {
	g, err := s.store.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID == userID {
		return ErrOwnerCannotLeave
	}
	return s.remove(ctx, g, userID)
}

// Remove lets the owner kick memberID out of groupID.
func (s *Service) Remove(ctx context.Context, actorID, groupID, memberID string) error {
	g, err := s.ownedGroup(ctx, actorID, groupID)
	if err != nil {
		return err
	}
	if memberID == g.OwnerID {
		return ErrOwnerCannotLeave
	}
	return s.remove(ctx, g, memberID)
}

// Rename changes the group name and announces group updated.
func (s *Service) Rename(ctx context.Context, actorID, groupID, name string) (Group, error) {
	if _, err := s.ownedGroup(ctx, actorID, groupID); err != nil {
		return Group{}, err
	}
	g, err := s.store.RenameGroup(ctx, groupID, name)
	if err != nil {
		return Group{}, err
	}
	s.notify.AnnounceMembershipChange(g.RoomID, v1.TypeGroupUpdated, v1.GroupPayload{GroupID: g.ID})
	return g, nil
}

// Delete removes the group, announces group deleted and dissolves its rooms.
func (s *Service) Delete(ctx context.Context, actorID, groupID string) error {
	g, err := s.ownedGroup(ctx, actorID, groupID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	s.notify.AnnounceMembershipChange(g.RoomID, v1.TypeGroupDeleted, v1.GroupPayload{GroupID: g.ID})
	s.notify.DissolveRooms(g.Rooms()...)
	s.log.Info("groups.delete", "group_id", g.ID, "owner_id", actorID)
	return nil
}

func (s *Service) remove(ctx context.Context, g Group, userID string) error {
	removed, err := s.store.RemoveMember(ctx, g.ID, userID)
	if err != nil {
		return err
	}
	if removed {
		s.announceMember(ctx, g, userID, v1.TypeUserLeftGroup)
		s.notify.EvictMember(userID, g.Rooms()...)
	}
	return nil
}

func (s *Service) ownedGroup(ctx context.Context, actorID, groupID string) (Group, error) {
	g, err := s.store.GroupByID(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if g.OwnerID != actorID {
		return Group{}, ErrForbidden
	}
	return g, nil
}

func (s *Service) announceMember(ctx context.Context, g Group, userID, event string) {
	summary := v1.UserSummary{ID: userID}
	if s.users != nil {
		u, err := s.users.UserByID(ctx, userID)
		switch {
		case err == nil:
			us := u.Summary()
			summary = v1.UserSummary{ID: us.ID, Username: us.Username, ProfileImg: us.ProfileImg}
		case !errors.Is(err, identity.ErrNotFound):
			s.log.Warn("groups.announce.user_lookup", "user_id", userID, "err", err)
		}
	}
	s.notify.AnnounceMembershipChange(g.RoomID, event, v1.MembershipPayload{User: summary, GroupID: g.ID})
	s.log.Info("groups.membership", "event", event, "group_id", g.ID, "user_id", userID)
}
