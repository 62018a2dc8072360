package identity

import (
	"context"
	"time"
)

// CreateUserInput describes a registration.
// PasswordHash is produced by the caller with security/password.
type CreateUserInput struct {
	Email        string
	PasswordHash string

	Username   string
	ProfileImg string

	PrefersOnlineStatus OnlineStatus
	Now                 time.Time
}

// RefreshEdit changes a user's refresh list in place. Returning an error
// discards the edit.
type RefreshEdit func(u *User) error

// Store is the user persistence boundary.
//
// EditRefreshTokens runs edit against the freshly loaded user while the store
// holds that user's write lock, then persists the resulting list. Writers for
// different devices of one user therefore never overwrite each other.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	EditRefreshTokens(ctx context.Context, userID string, edit RefreshEdit) (User, error)
	UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error)
}

// ProfileUpdate is a partial profile edit. Nil fields keep their value.
// Setting both Username and ProfileImg approves a pending account.
type ProfileUpdate struct {
	Username            *string
	ProfileImg          *string
	PrefersOnlineStatus *OnlineStatus
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.ProfileImg == nil && p.PrefersOnlineStatus == nil
}

// applyProfile merges p into u. Stores call it under their write lock.
func applyProfile(op string, u *User, p ProfileUpdate) error {
	if p.Empty() {
		return invalid(op, "nothing to update")
	}
	cur := u.Summary()
	username, profileImg := cur.Username, cur.ProfileImg
	if p.Username != nil {
		username = *p.Username
	}
	if p.ProfileImg != nil {
		profileImg = *p.ProfileImg
	}
	if len([]rune(username)) > maxUsernameChars {
		return invalid(op, "username is too long")
	}
	u.Account = NewAccount(username, profileImg)

	if p.PrefersOnlineStatus != nil {
		if !p.PrefersOnlineStatus.Valid() {
			return invalid(op, "unknown online status")
		}
		u.PrefersOnlineStatus = *p.PrefersOnlineStatus
	}
	return nil
}

const maxUsernameChars = 64
