package authapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"huddle/cmd/identity"
)

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// loginThrottle remembers recent login failures per client IP and per email.
// Entries expire on their own once no tier could still apply.
type loginThrottle struct {
	mu    sync.Mutex
	cache *cache.Cache

	ipMax    int
	ipWindow time.Duration
	tiers    []lockoutTier
	keep     time.Duration
}

func newLoginThrottle(cfg Config) *loginThrottle {
	keep := cfg.LoginIPWindow
	for _, t := range cfg.lockoutTiers() {
		if t.Duration > keep {
			keep = t.Duration
		}
	}
	return &loginThrottle{
		cache:    cache.New(keep, keep),
		ipMax:    cfg.LoginIPMax,
		ipWindow: cfg.LoginIPWindow,
		tiers:    cfg.lockoutTiers(),
		keep:     keep,
	}
}

func ipKey(ip net.IP) string       { return "ip:" + ip.String() }
func emailKey(email string) string { return "email:" + identity.NormalizeEmail(email) }

// check reports whether a login from ip for email must be refused, and for how long.
func (t *loginThrottle) check(ip net.IP, email string, now time.Time) (bool, time.Duration) {
	if ip != nil {
		if blocked, retry := evaluateWindowThrottle(now, t.failures(ipKey(ip)), t.ipMax, t.ipWindow); blocked {
			return true, retry
		}
	}
	if email == "" {
		return false, 0
	}
	return evaluateProgressiveLockout(now, t.failures(emailKey(email)), t.tiers)
}

// fail records a failed attempt.
func (t *loginThrottle) fail(ip net.IP, email string, now time.Time) {
	if ip != nil {
		t.record(ipKey(ip), now)
	}
	if email != "" {
		t.record(emailKey(email), now)
	}
}

// reset forgets failures for email after a successful login.
func (t *loginThrottle) reset(email string) {
	t.cache.Delete(emailKey(email))
}

func (t *loginThrottle) failures(key string) []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cache.Get(key)
	if !ok {
		return nil
	}
	return append([]time.Time(nil), v.([]time.Time)...)
}

func (t *loginThrottle) record(key string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var kept []time.Time
	if v, ok := t.cache.Get(key); ok {
		cut := now.Add(-t.keep)
		for _, ts := range v.([]time.Time) {
			if ts.After(cut) {
				kept = append(kept, ts)
			}
		}
	}
	kept = append(kept, now)
	t.cache.Set(key, kept, cache.DefaultExpiration)
}

// evaluateWindowThrottle blocks once limit failures fall inside window.
// The retry delay runs until the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, ts := range failures {
		if !ts.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	if count < limit {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier whose threshold is met and
// whose lockout, counted from the latest failure, has not yet elapsed.
// Tiers are expected in descending threshold order.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	var latest time.Time
	for _, ts := range failures {
		if ts.After(latest) {
			latest = ts
		}
	}
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		if until := latest.Add(tier.Duration); until.After(now) {
			return true, until.Sub(now)
		}
	}
	return false, 0
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeMessage(w, http.StatusTooManyRequests, "Too many attempts, try again later")
}
