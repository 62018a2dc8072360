package invite

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"huddle/cmd/identity/ids"
	"huddle/cmd/internal/groups"
	"huddle/cmd/security/token"
)

const (
	defaultTokenBytes = 24
	defaultTTL        = 7 * 24 * time.Hour
	maxTTL            = 30 * 24 * time.Hour
	maxUsesLimit      = 10_000
)

// Groups is the membership surface invites need. *groups.Service satisfies it.
type Groups interface {
	Group(ctx context.Context, id string) (groups.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	Join(ctx context.Context, groupID, userID string) (groups.Group, error)
}

// CreateInput describes invite creation.
type CreateInput struct {
	GroupID   string
	CreatedBy string
	TTL       time.Duration
	MaxUses   int
	Now       time.Time
}

// Service manages invite creation, lookup and redemption.
type Service struct {
	log        *slog.Logger
	store      Store
	groups     Groups
	tokenBytes int
}

// Option configures the Service.
type Option func(*Service) error

// WithTokenBytes sets the entropy of generated invite codes.
func WithTokenBytes(n int) Option {
	return func(s *Service) error {
		if n < token.MinBytes || n > token.MaxBytes {
			return ErrInvalidInput
		}
		s.tokenBytes = n
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, gs Groups, opts ...Option) (*Service, error) {
	if store == nil || gs == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{log: slog.Default(), store: store, groups: gs, tokenBytes: defaultTokenBytes}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateInvite mints a code for a group the creator belongs to.
// The plain code is returned once; only its hash is stored.
func (s *Service) CreateInvite(ctx context.Context, in CreateInput) (Invite, string, error) {
	groupID := strings.TrimSpace(in.GroupID)
	createdBy := strings.TrimSpace(in.CreatedBy)
	if groupID == "" || createdBy == "" {
		return Invite{}, "", ErrInvalidInput
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl > maxTTL || in.MaxUses < 0 || in.MaxUses > maxUsesLimit {
		return Invite{}, "", ErrInvalidInput
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if _, err := s.groups.Group(ctx, groupID); err != nil {
		return Invite{}, "", err
	}
	member, err := s.groups.IsMember(ctx, groupID, createdBy)
	if err != nil {
		return Invite{}, "", err
	}
	if !member {
		return Invite{}, "", ErrNotMember
	}

	code, err := token.NewOpaque(s.tokenBytes)
	if err != nil {
		return Invite{}, "", err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Invite{}, "", err
	}

	inv, err := s.store.Create(ctx, CreateRecord{
		Invite: Invite{
			ID:        id,
			GroupID:   groupID,
			CreatedBy: createdBy,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
			MaxUses:   in.MaxUses,
		},
		TokenHash: token.HashSHA256Hex(code),
	})
	if err != nil {
		return Invite{}, "", err
	}

	s.log.Info("invite.create", "invite_id", inv.ID, "group_id", groupID, "user_id", createdBy, "expires_at", inv.ExpiresAt)
	return inv, code, nil
}

// Preview returns the group an active code points at.
func (s *Service) Preview(ctx context.Context, code string, now time.Time) (groups.Group, error) {
	inv, err := s.active(ctx, code, now)
	if err != nil {
		return groups.Group{}, err
	}
	return s.groups.Group(ctx, inv.GroupID)
}

// Accept redeems code for userID and joins the group.
// Members already in the group get ErrAlreadyMember and the code is not spent.
func (s *Service) Accept(ctx context.Context, code, userID string, now time.Time) (groups.Group, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return groups.Group{}, ErrInvalidInput
	}
	inv, err := s.active(ctx, code, now)
	if err != nil {
		return groups.Group{}, err
	}

	member, err := s.groups.IsMember(ctx, inv.GroupID, userID)
	if err != nil {
		return groups.Group{}, err
	}
	if member {
		return groups.Group{}, ErrAlreadyMember
	}

	if _, err := s.store.Consume(ctx, token.HashSHA256Hex(strings.TrimSpace(code)), now); err != nil {
		return groups.Group{}, err
	}
	g, err := s.groups.Join(ctx, inv.GroupID, userID)
	if err != nil {
		return groups.Group{}, err
	}

	s.log.Info("invite.accept", "invite_id", inv.ID, "group_id", g.ID, "user_id", userID)
	return g, nil
}

// Revoke disables an invite. Only the group owner may revoke.
func (s *Service) Revoke(ctx context.Context, actorID, groupID, inviteID string, now time.Time) error {
	g, err := s.groups.Group(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != actorID {
		return ErrForbidden
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if err := s.store.Revoke(ctx, groupID, inviteID, now); err != nil {
		return err
	}
	s.log.Info("invite.revoke", "invite_id", inviteID, "group_id", groupID, "user_id", actorID)
	return nil
}

func (s *Service) active(ctx context.Context, code string, now time.Time) (Invite, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	inv, err := s.store.GetByTokenHash(ctx, token.HashSHA256Hex(code))
	if err != nil {
		return Invite{}, err
	}
	if !inv.Active(now) {
		return Invite{}, ErrNotActive
	}
	return inv, nil
}

// IsInvalidCode reports whether err means the code cannot be redeemed.
func IsInvalidCode(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotActive) || errors.Is(err, ErrInvalidInput)
}
