package invite

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps invites in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Invite
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]Invite)}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.TokenHash) == "" || in.MaxUses < 0 {
		return Invite{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[in.TokenHash]; ok {
		return Invite{}, ErrInvalidInput
	}
	s.byHash[in.TokenHash] = in.Invite
	return in.Invite, nil
}

func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byHash[tokenHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (s *MemoryStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byHash[tokenHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	if !inv.Active(now) {
		return Invite{}, ErrNotActive
	}
	inv.UsedCount++
	s.byHash[tokenHash] = inv
	return inv, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, groupID, inviteID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for h, inv := range s.byHash {
		if inv.ID != inviteID || inv.GroupID != groupID {
			continue
		}
		if inv.RevokedAt == nil {
			at := now
			inv.RevokedAt = &at
			s.byHash[h] = inv
		}
		return nil
	}
	return ErrNotFound
}
