package groups

import (
	"context"
	"strings"
	"time"

	"huddle/cmd/identity/ids"
)

const (
	maxNameChars   = 100
	maxChannels    = 50
	defaultChannel = "general"
)

// CreateGroupInput describes a new group. The owner becomes its first member.
type CreateGroupInput struct {
	Name     string
	OwnerID  string
	Channels []string
	Now      time.Time
}

// Store is the membership persistence boundary.
//
// AddMember and RemoveMember are idempotent and report whether anything changed.
type Store interface {
	CreateGroup(ctx context.Context, in CreateGroupInput) (Group, error)
	GroupByID(ctx context.Context, id string) (Group, error)
	GroupsForUser(ctx context.Context, userID string) ([]Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	AddMember(ctx context.Context, groupID, userID string) (bool, error)
	RemoveMember(ctx context.Context, groupID, userID string) (bool, error)
	RenameGroup(ctx context.Context, groupID, name string) (Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// newGroup validates input and assigns ids shared by all stores.
func newGroup(in CreateGroupInput) (Group, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return Group{}, err
	}
	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return Group{}, ErrInvalidInput
	}

	channels := in.Channels
	if len(channels) == 0 {
		channels = []string{defaultChannel}
	}
	if len(channels) > maxChannels {
		return Group{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	g := Group{Name: name, OwnerID: owner, CreatedAt: now}
	if g.ID, err = ids.NewULID(now); err != nil {
		return Group{}, err
	}
	if g.RoomID, err = ids.NewULID(now); err != nil {
		return Group{}, err
	}

	for _, raw := range channels {
		cn, err := cleanName(raw)
		if err != nil {
			return Group{}, err
		}
		c := Channel{Name: cn}
		if c.ID, err = ids.NewULID(now); err != nil {
			return Group{}, err
		}
		if c.RoomID, err = ids.NewULID(now); err != nil {
			return Group{}, err
		}
		g.Channels = append(g.Channels, c)
	}
	return g, nil
}

func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len([]rune(name)) > maxNameChars {
		return "", ErrInvalidInput
	}
	return name, nil
}
