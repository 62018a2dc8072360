package groups

import (
	"context"
	"testing"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/pgtest"
)

// Integration tests are opt-in and require HUDDLE_DATABASE_URL.

func TestPostgresStore_MembershipLifecycle(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	schema := pgtest.MigratedSchema(t, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	owner, err := users.CreateUser(ctx, identity.CreateUserInput{Email: "owner@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	guest, err := users.CreateUser(ctx, identity.CreateUserInput{Email: "guest@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("groups store: %v", err)
	}

	g, err := s.CreateGroup(ctx, CreateGroupInput{Name: "Gophers", OwnerID: owner.ID, Channels: []string{"general", "random"}})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	loaded, err := s.GroupByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("group by id: %v", err)
	}
	if len(loaded.Channels) != 2 || loaded.Channels[0].Name != "general" || loaded.Channels[1].Name != "random" {
		t.Fatalf("unexpected channels: %+v", loaded.Channels)
	}

	added, err := s.AddMember(ctx, g.ID, guest.ID)
	if err != nil || !added {
		t.Fatalf("add member: added=%v err=%v", added, err)
	}
	added, err = s.AddMember(ctx, g.ID, guest.ID)
	if err != nil || added {
		t.Fatalf("second add must be a no-op: added=%v err=%v", added, err)
	}

	mine, err := s.GroupsForUser(ctx, guest.ID)
	if err != nil {
		t.Fatalf("groups for user: %v", err)
	}
	if len(mine) != 1 || len(mine[0].Rooms()) != 3 {
		t.Fatalf("unexpected memberships: %+v", mine)
	}

	removed, err := s.RemoveMember(ctx, g.ID, guest.ID)
	if err != nil || !removed {
		t.Fatalf("remove member: removed=%v err=%v", removed, err)
	}
	if member, err := s.IsMember(ctx, g.ID, guest.ID); err != nil || member {
		t.Fatalf("is member after remove: member=%v err=%v", member, err)
	}

	renamed, err := s.RenameGroup(ctx, g.ID, "Renamed")
	if err != nil || renamed.Name != "Renamed" {
		t.Fatalf("rename: %+v err=%v", renamed, err)
	}

	if err := s.DeleteGroup(ctx, g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GroupByID(ctx, g.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.AddMember(ctx, g.ID, guest.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound adding to deleted group, got %v", err)
	}
}
