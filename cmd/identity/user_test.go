package identity

import (
	"testing"
	"time"
)

func TestNewAccount_Variant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		username   string
		profileImg string
		want       AccountStatus
	}{
		{name: "both set", username: "navi", profileImg: "img/1.png", want: AccountApproved},
		{name: "missing image", username: "navi", want: AccountPending},
		{name: "missing username", profileImg: "img/1.png", want: AccountPending},
		{name: "blank", username: "  ", profileImg: " ", want: AccountPending},
	}

	for _, tc := range cases {
		got := NewAccount(tc.username, tc.profileImg).Status()
		if got != tc.want {
			t.Fatalf("%s: status=%s want=%s", tc.name, got, tc.want)
		}
	}
}

func TestUserSummary_PendingHasNoProfile(t *testing.T) {
	t.Parallel()

	u := User{ID: "u1", Account: PendingAccount{}}
	s := u.Summary()
	if s.ID != "u1" || s.Username != "" || s.ProfileImg != "" {
		t.Fatalf("unexpected summary: %+v", s)
	}

	u.Account = ApprovedAccount{Username: "navi", ProfileImg: "p.png"}
	s = u.Summary()
	if s.Username != "navi" || s.ProfileImg != "p.png" {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestParseOnlineStatus(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ONLINE", "AWAY", "DO NOT DISTURB", "OFFLINE"} {
		if _, ok := ParseOnlineStatus(raw); !ok {
			t.Fatalf("ParseOnlineStatus(%q) rejected", raw)
		}
	}
	for _, raw := range []string{"", "online", "BUSY"} {
		if _, ok := ParseOnlineStatus(raw); ok {
			t.Fatalf("ParseOnlineStatus(%q) accepted", raw)
		}
	}
}

func TestUser_PreferredStatusDefaultsOnline(t *testing.T) {
	t.Parallel()

	if got := (User{}).PreferredStatus(); got != StatusOnline {
		t.Fatalf("PreferredStatus()=%s", got)
	}
	if got := (User{PrefersOnlineStatus: StatusAway}).PreferredStatus(); got != StatusAway {
		t.Fatalf("PreferredStatus()=%s", got)
	}
}

func TestUser_CloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	u := User{RefreshTokens: []RefreshCredential{{Token: "a", ExpDate: time.Now()}}}
	cp := u.Clone()
	cp.RefreshTokens[0].Token = "b"
	if u.RefreshTokens[0].Token != "a" {
		t.Fatalf("clone aliases refresh list")
	}
}
