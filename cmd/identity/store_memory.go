package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"huddle/cmd/identity/ids"
)

// MemoryStore is the in-process Store used when no database is configured.
// It hands out copies so callers cannot mutate stored state by accident.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	u, err := newUser(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[NormalizeEmail(u.Email)]; ok {
		return User{}, conflict(op, "email")
	}
	s.byID[u.ID] = u
	s.byEmail[NormalizeEmail(u.Email)] = u.ID
	return u.Clone(), nil
}

func (s *MemoryStore) UserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, userNotFound("identity.UserByID")
	}
	return u.Clone(), nil
}

func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, userNotFound("identity.UserByEmail")
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) EditRefreshTokens(ctx context.Context, userID string, edit RefreshEdit) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return User{}, userNotFound("identity.EditRefreshTokens")
	}
	next := u.Clone()
	if err := edit(&next); err != nil {
		return User{}, err
	}
	u.RefreshTokens = append([]RefreshCredential(nil), next.RefreshTokens...)
	s.byID[userID] = u
	return u.Clone(), nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return User{}, userNotFound(op)
	}
	if err := applyProfile(op, &u, in); err != nil {
		return User{}, err
	}
	s.byID[userID] = u
	return u.Clone(), nil
}

// newUser validates input and assigns identity fields shared by all stores.
func newUser(op string, in CreateUserInput) (User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, invalid(op, "valid email is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	pref := in.PrefersOnlineStatus
	if !pref.Valid() {
		pref = StatusOnline
	}

	return User{
		ID:                  id,
		Email:               email,
		PasswordHash:        in.PasswordHash,
		Account:             NewAccount(in.Username, in.ProfileImg),
		PrefersOnlineStatus: pref,
		CreatedAt:           now,
	}, nil
}
