package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.CreateUser(ctx, CreateUserInput{
		Email:        "User@Example.com",
		PasswordHash: "$argon2id$placeholder",
		Username:     "user",
		ProfileImg:   "u.png",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if len(u.ID) != 26 {
		t.Fatalf("expected ULID id, got %q", u.ID)
	}
	if u.Status() != AccountApproved {
		t.Fatalf("expected approved account")
	}

	byEmail, err := s.UserByEmail(ctx, "  user@example.COM ")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Fatalf("id mismatch")
	}

	_, err = s.CreateUser(ctx, CreateUserInput{Email: "user@example.com", PasswordHash: "x"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	_, err = s.UserByID(ctx, "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_EditRefreshTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "a@b.c", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	exp := time.Now().Add(time.Hour).UTC()
	var leaked *User
	got, err := s.EditRefreshTokens(ctx, u.ID, func(cur *User) error {
		cur.RefreshTokens = append(cur.RefreshTokens, RefreshCredential{Token: "t1", DeviceID: "d1", ExpDate: exp})
		leaked = cur
		return nil
	})
	if err != nil {
		t.Fatalf("EditRefreshTokens: %v", err)
	}
	if len(got.RefreshTokens) != 1 || got.RefreshTokens[0].Token != "t1" {
		t.Fatalf("unexpected refresh list: %+v", got.RefreshTokens)
	}

	// Holding on to the edited user must not leak into the store.
	leaked.RefreshTokens[0].Token = "mutated"

	stored, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if stored.RefreshTokens[0].Token != "t1" {
		t.Fatalf("store aliased the edit: %+v", stored.RefreshTokens)
	}

	// A failing edit writes nothing.
	boom := errors.New("boom")
	_, err = s.EditRefreshTokens(ctx, u.ID, func(cur *User) error {
		cur.RefreshTokens = nil
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected edit error, got %v", err)
	}
	stored, _ = s.UserByID(ctx, u.ID)
	if len(stored.RefreshTokens) != 1 {
		t.Fatalf("failed edit was persisted: %+v", stored.RefreshTokens)
	}

	_, err = s.EditRefreshTokens(ctx, "missing", func(*User) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_EditRefreshTokens_ConcurrentAppendsAllLand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "many@b.c", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	const n = 50
	exp := time.Now().Add(time.Hour)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.EditRefreshTokens(ctx, u.ID, func(cur *User) error {
				cur.RefreshTokens = append(cur.RefreshTokens, RefreshCredential{
					Token:    fmt.Sprintf("t%d", i),
					DeviceID: fmt.Sprintf("d%d", i),
					ExpDate:  exp,
				})
				return nil
			})
			if err != nil {
				t.Errorf("EditRefreshTokens: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if len(got.RefreshTokens) != n {
		t.Fatalf("expected %d tokens, got %d", n, len(got.RefreshTokens))
	}
}

func TestMemoryStore_CreateUser_InvalidInput(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryStore().CreateUser(context.Background(), CreateUserInput{Email: "nope", PasswordHash: "h"})
	if !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMemoryStore_UpdateProfileApprovesAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "new@b.c", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Status() != AccountPending {
		t.Fatalf("expected pending account")
	}

	name := "newbie"
	got, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{Username: &name})
	if err != nil {
		t.Fatalf("UpdateProfile username: %v", err)
	}
	if got.Status() != AccountPending {
		t.Fatalf("username alone must not approve the account")
	}

	img := "https://img.example/n.png"
	away := StatusAway
	got, err = s.UpdateProfile(ctx, u.ID, ProfileUpdate{Username: &name, ProfileImg: &img, PrefersOnlineStatus: &away})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.Status() != AccountApproved || got.Summary().Username != "newbie" {
		t.Fatalf("expected approved profile, got %+v", got.Summary())
	}
	if got.PreferredStatus() != StatusAway {
		t.Fatalf("expected AWAY preference, got %q", got.PreferredStatus())
	}

	bogus := OnlineStatus("SLEEPING")
	if _, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{PrefersOnlineStatus: &bogus}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty update, got %v", err)
	}
	if _, err := s.UpdateProfile(ctx, "missing", ProfileUpdate{Username: &name}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
