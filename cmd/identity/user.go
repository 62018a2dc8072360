package identity

import (
	"strings"
	"time"
)

// OnlineStatus is a user's broadcast presence.
// Values are wire-stable and shared with the realtime protocol.
type OnlineStatus string

const (
	StatusOnline       OnlineStatus = "ONLINE"
	StatusAway         OnlineStatus = "AWAY"
	StatusDoNotDisturb OnlineStatus = "DO NOT DISTURB"
	StatusOffline      OnlineStatus = "OFFLINE"
)

// Valid reports whether s is one of the known presence values.
func (s OnlineStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusDoNotDisturb, StatusOffline:
		return true
	default:
		return false
	}
}

// ParseOnlineStatus validates raw input against the presence enum.
func ParseOnlineStatus(raw string) (OnlineStatus, bool) {
	s := OnlineStatus(raw)
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// RefreshCredential is one outstanding refresh token for one device.
// The token is stored verbatim and never returned to clients outside cookies.
type RefreshCredential struct {
	Token    string
	DeviceID string
	ExpDate  time.Time
}

// Expired reports whether the credential is no longer usable at now.
func (c RefreshCredential) Expired(now time.Time) bool {
	return c.ExpDate.Before(now)
}

// AccountStatus tags the Account variant.
type AccountStatus string

const (
	AccountPending  AccountStatus = "PENDING"
	AccountApproved AccountStatus = "APPROVED"
)

// Account is the closed set of account variants.
// Only PendingAccount and ApprovedAccount implement it.
type Account interface {
	Status() AccountStatus
	sealedAccount()
}

// PendingAccount has signed up but not finished its profile.
type PendingAccount struct{}

func (PendingAccount) Status() AccountStatus { return AccountPending }
func (PendingAccount) sealedAccount()        {}

// ApprovedAccount has a public profile.
type ApprovedAccount struct {
	Username   string
	ProfileImg string
}

func (ApprovedAccount) Status() AccountStatus { return AccountApproved }
func (ApprovedAccount) sealedAccount()        {}

// NewAccount picks the variant from profile fields: both present means approved.
func NewAccount(username, profileImg string) Account {
	username = strings.TrimSpace(username)
	profileImg = strings.TrimSpace(profileImg)
	if username == "" || profileImg == "" {
		return PendingAccount{}
	}
	return ApprovedAccount{Username: username, ProfileImg: profileImg}
}

// User is Huddle's security principal.
type User struct {
	ID           string
	Email        string
	PasswordHash string

	Account             Account
	PrefersOnlineStatus OnlineStatus

	// RefreshTokens is ordered by insertion, oldest first.
	RefreshTokens []RefreshCredential

	CreatedAt time.Time
}

// UserSummary is the client-safe projection shared with other users.
type UserSummary struct {
	ID         string `json:"_id"`
	Username   string `json:"username"`
	ProfileImg string `json:"profileImg"`
}

// Summary projects u for other users. Pending accounts have no public profile.
func (u User) Summary() UserSummary {
	out := UserSummary{ID: u.ID}
	switch a := u.Account.(type) {
	case ApprovedAccount:
		out.Username = a.Username
		out.ProfileImg = a.ProfileImg
	case PendingAccount, nil:
	}
	return out
}

// Status returns the account variant tag, treating a missing variant as pending.
func (u User) Status() AccountStatus {
	if u.Account == nil {
		return AccountPending
	}
	return u.Account.Status()
}

// PreferredStatus returns the stored presence preference, defaulting to online.
func (u User) PreferredStatus() OnlineStatus {
	if u.PrefersOnlineStatus.Valid() {
		return u.PrefersOnlineStatus
	}
	return StatusOnline
}

// Clone returns a copy whose refresh list does not alias u's.
func (u User) Clone() User {
	cp := u
	if u.RefreshTokens != nil {
		cp.RefreshTokens = append([]RefreshCredential(nil), u.RefreshTokens...)
	}
	return cp
}

// profileColumns flattens the variant for storage.
func profileColumns(a Account) (status AccountStatus, username, profileImg *string) {
	switch v := a.(type) {
	case ApprovedAccount:
		u, p := v.Username, v.ProfileImg
		return AccountApproved, &u, &p
	default:
		return AccountPending, nil, nil
	}
}

// accountFromColumns rebuilds the variant from storage.
func accountFromColumns(status string, username, profileImg *string) Account {
	if AccountStatus(status) != AccountApproved || username == nil || profileImg == nil {
		return PendingAccount{}
	}
	return ApprovedAccount{Username: *username, ProfileImg: *profileImg}
}
