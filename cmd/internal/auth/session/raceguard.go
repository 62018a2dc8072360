package session

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// RaceGuard marks refresh tokens whose rotation is in flight.
//
// Entries expire on their own and are never deleted: if a rotation crashes,
// the lock times out and the next request may rotate again.
// One RaceGuard is shared by every verifier in the process.
type RaceGuard struct {
	entries *cache.Cache
}

// NewRaceGuard builds a guard whose entries live for ttl.
func NewRaceGuard(ttl time.Duration) *RaceGuard {
	if ttl <= 0 {
		ttl = DefaultConfig().LockTTL
	}
	return &RaceGuard{entries: cache.New(ttl, 2*ttl)}
}

// TryAcquire marks tok as rotating. It returns false if another caller already holds it.
// go-cache's Add is an atomic set-if-absent that ignores expired entries.
func (g *RaceGuard) TryAcquire(tok string) bool {
	if tok == "" {
		return false
	}
	return g.entries.Add(tok, struct{}{}, cache.DefaultExpiration) == nil
}

// HasLock reports whether a rotation for tok is in flight.
func (g *RaceGuard) HasLock(tok string) bool {
	if tok == "" {
		return false
	}
	_, ok := g.entries.Get(tok)
	return ok
}
