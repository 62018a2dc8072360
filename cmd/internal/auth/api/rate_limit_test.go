package authapi

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var throttleNow = time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

// failuresAgo returns one failure per offset before throttleNow.
func failuresAgo(offsets ...time.Duration) []time.Time {
	out := make([]time.Time, 0, len(offsets))
	for _, d := range offsets {
		out = append(out, throttleNow.Add(-d))
	}
	return out
}

func minutesAgo(n int) []time.Time {
	offsets := make([]time.Duration, 0, n)
	for i := 1; i <= n; i++ {
		offsets = append(offsets, time.Duration(i)*time.Minute)
	}
	return failuresAgo(offsets...)
}

func TestEvaluateWindowThrottle(t *testing.T) {
	failures := failuresAgo(time.Minute, 2*time.Minute, 6*time.Minute)

	cases := []struct {
		name      string
		limit     int
		wantBlock bool
		wantRetry time.Duration
	}{
		{name: "limit reached inside window", limit: 2, wantBlock: true, wantRetry: 3 * time.Minute},
		{name: "old failure ignored", limit: 3},
		{name: "disabled", limit: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocked, retry := evaluateWindowThrottle(throttleNow, failures, tc.limit, 5*time.Minute)
			assert.Equal(t, tc.wantBlock, blocked)
			assert.Equal(t, tc.wantRetry, retry)
		})
	}
}

func TestEvaluateProgressiveLockout(t *testing.T) {
	tiers := []lockoutTier{
		{Threshold: 20, Duration: 2 * time.Hour},
		{Threshold: 10, Duration: 30 * time.Minute},
		{Threshold: 5, Duration: 5 * time.Minute},
	}

	cases := []struct {
		name      string
		failures  []time.Time
		wantBlock bool
		wantRetry time.Duration
	}{
		{
			name:      "short tier",
			failures:  failuresAgo(30*time.Second, time.Minute, 2*time.Minute, 3*time.Minute, 4*time.Minute),
			wantBlock: true,
			wantRetry: 4*time.Minute + 30*time.Second,
		},
		{
			name:     "short tier elapsed",
			failures: failuresAgo(6*time.Minute, 7*time.Minute, 8*time.Minute, 9*time.Minute, 10*time.Minute),
		},
		{name: "long tier", failures: minutesAgo(10), wantBlock: true, wantRetry: 29 * time.Minute},
		{name: "severe tier wins", failures: minutesAgo(20), wantBlock: true, wantRetry: 2*time.Hour - time.Minute},
		{name: "below every threshold", failures: minutesAgo(4)},
		{name: "no failures"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocked, retry := evaluateProgressiveLockout(throttleNow, tc.failures, tiers)
			assert.Equal(t, tc.wantBlock, blocked)
			assert.Equal(t, tc.wantRetry, retry)
		})
	}
}

func TestLoginThrottle_LocksEmailAndResets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockoutShortThreshold = 3
	cfg.LockoutShortDuration = time.Minute
	th := newLoginThrottle(cfg)

	for i := 0; i < 3; i++ {
		blocked, _ := th.check(nil, "Ada@Example.com", throttleNow)
		require.False(t, blocked, "attempt %d blocked too early", i)
		th.fail(nil, "ada@example.com", throttleNow)
	}

	blocked, retry := th.check(nil, "ada@example.com", throttleNow.Add(10*time.Second))
	assert.True(t, blocked)
	assert.Equal(t, 50*time.Second, retry)

	th.reset("ADA@example.com")
	blocked, _ = th.check(nil, "ada@example.com", throttleNow.Add(10*time.Second))
	assert.False(t, blocked, "reset clears the email lockout")
}

func TestLoginThrottle_IPWindowSurvivesReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginIPMax = 2
	cfg.LoginIPWindow = time.Minute
	th := newLoginThrottle(cfg)
	ip := net.ParseIP("203.0.113.7")

	th.fail(ip, "a@example.com", throttleNow)
	th.fail(ip, "b@example.com", throttleNow.Add(time.Second))
	th.reset("a@example.com")

	blocked, retry := th.check(ip, "c@example.com", throttleNow.Add(2*time.Second))
	assert.True(t, blocked, "per-IP failures span emails")
	assert.Equal(t, 58*time.Second, retry)

	blocked, _ = th.check(net.ParseIP("203.0.113.8"), "c@example.com", throttleNow.Add(2*time.Second))
	assert.False(t, blocked)
}

func TestWriteRateLimited_RoundsRetryAfterUp(t *testing.T) {
	rr := httptest.NewRecorder()
	writeRateLimited(rr, 1200*time.Millisecond)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"message":"Too many attempts, try again later"}`, rr.Body.String())
}
