package groups

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	groups  map[string]Group
	members map[string]map[string]struct{} // group id -> user ids
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:  make(map[string]Group),
		members: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) CreateGroup(ctx context.Context, in CreateGroupInput) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}
	g, err := newGroup(in)
	if err != nil {
		return Group{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups[g.ID] = g
	s.members[g.ID] = map[string]struct{}{g.OwnerID: {}}
	return g.clone(), nil
}

func (s *MemoryStore) GroupByID(ctx context.Context, id string) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[strings.TrimSpace(id)]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g.clone(), nil
}

func (s *MemoryStore) GroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Group
	for gid, set := range s.members {
		if _, ok := set[userID]; ok {
			out = append(out, s.groups[gid].clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.members[groupID]
	if !ok {
		return false, ErrNotFound
	}
	_, member := set[userID]
	return member, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, groupID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return false, ErrNotFound
	}
	if _, exists := set[userID]; exists {
		return false, nil
	}
	set[userID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return false, ErrNotFound
	}
	if _, exists := set[userID]; !exists {
		return false, nil
	}
	delete(set, userID)
	return true, nil
}

func (s *MemoryStore) RenameGroup(ctx context.Context, groupID, name string) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return Group{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return Group{}, ErrNotFound
	}
	g.Name = clean
	s.groups[groupID] = g
	return g.clone(), nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return ErrNotFound
	}
	delete(s.groups, groupID)
	delete(s.members, groupID)
	return nil
}
