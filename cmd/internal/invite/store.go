package invite

import (
	"context"
	"time"
)

// Invite is a shareable code that admits its holder into one group.
// MaxUses zero means unlimited until expiry.
type Invite struct {
	ID        string
	GroupID   string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxUses   int
	UsedCount int
	RevokedAt *time.Time
}

// Active reports whether the invite can still be redeemed at now.
func (i Invite) Active(now time.Time) bool {
	if i.RevokedAt != nil {
		return false
	}
	if !i.ExpiresAt.After(now) {
		return false
	}
	return i.MaxUses == 0 || i.UsedCount < i.MaxUses
}

// CreateRecord is a normalized invite insert payload.
type CreateRecord struct {
	Invite
	TokenHash string
}

// Store is the persistence boundary for invites. Codes are stored hashed.
//
// Consume increments the use count only while the invite is active and
// returns ErrNotActive otherwise.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Invite, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error)
	Consume(ctx context.Context, tokenHash string, now time.Time) (Invite, error)
	Revoke(ctx context.Context, groupID, inviteID string, now time.Time) error
}
