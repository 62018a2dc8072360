package realtime

import (
	"sync"
	"time"
)

// RateLimiter caps inbound events per connection over a sliding window.
// It keeps the last limit admission times in a ring.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	ring   []time.Time
	next   int // oldest slot once the ring is full
	filled int
}

// NewRateLimiter falls back to the package defaults for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{window: window, ring: make([]time.Time, limit)}
}

// Allow records an event at now and reports whether it fits the window.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled < len(r.ring) {
		r.ring[r.filled] = now
		r.filled++
		return true
	}
	if now.Sub(r.ring[r.next]) < r.window {
		return false
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % len(r.ring)
	return true
}
