package realtime

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds the HUDDLE_WS_* tunables.
type GatewayConfig struct {
	// DevInsecure skips websocket.Accept's own origin check. Local development only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	HandlerTimeout  time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig allows only local origins.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   true,
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		HandlerTimeout:   wsDefaultHandlerTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadGatewayConfig overlays HUDDLE_WS_* variables on the defaults.
// Unparsable or non-positive values keep the default.
func LoadGatewayConfig() GatewayConfig {
	c := DefaultGatewayConfig()

	if b, err := strconv.ParseBool(env("HUDDLE_WS_DEV_INSECURE")); err == nil {
		c.DevInsecure = b
	}
	if b, err := strconv.ParseBool(env("HUDDLE_WS_ORIGIN_REQUIRED")); err == nil {
		c.OriginRequired = b
	}
	if v := env("HUDDLE_WS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitCSV(v)
	}

	durations := map[string]*time.Duration{
		"HUDDLE_WS_WRITE_TIMEOUT":      &c.WriteTimeout,
		"HUDDLE_WS_READ_IDLE_TIMEOUT":  &c.ReadIdleTimeout,
		"HUDDLE_WS_HANDLER_TIMEOUT":    &c.HandlerTimeout,
		"HUDDLE_WS_HEARTBEAT_INTERVAL": &c.HeartbeatEvery,
		"HUDDLE_WS_HEARTBEAT_TIMEOUT":  &c.HeartbeatTimeout,
		"HUDDLE_WS_RATE_WINDOW":        &c.RateWindow,
	}
	for key, dst := range durations {
		if d, err := time.ParseDuration(env(key)); err == nil && d > 0 {
			*dst = d
		}
	}

	ints := map[string]*int{
		"HUDDLE_WS_SEND_QUEUE":  &c.SendQueueSize,
		"HUDDLE_WS_RATE_EVENTS": &c.RateEvents,
	}
	for key, dst := range ints {
		if n, err := strconv.Atoi(env(key)); err == nil && n > 0 {
			*dst = n
		}
	}

	return c.normalized()
}

func (c GatewayConfig) normalized() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	for _, p := range []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&c.WriteTimeout, def.WriteTimeout},
		{&c.ReadIdleTimeout, def.ReadIdleTimeout},
		{&c.HandlerTimeout, def.HandlerTimeout},
		{&c.HeartbeatEvery, def.HeartbeatEvery},
		{&c.HeartbeatTimeout, def.HeartbeatTimeout},
	} {
		if *p.v <= 0 {
			*p.v = p.def
		}
	}
	return c
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// originPolicy decides which browser origins may open a socket.
// An entry matches by exact origin or by host alone (any scheme or port); "*" allows all.
type originPolicy struct {
	required bool
	any      bool
	exact    []string
	hosts    []string
}

func newOriginPolicy(required bool, allowed []string) originPolicy {
	p := originPolicy{required: required}
	for _, a := range allowed {
		switch a = strings.TrimSpace(a); a {
		case "":
		case "*":
			p.any = true
		default:
			p.exact = append(p.exact, a)
			if h := hostOf(a); h != "" && !slices.Contains(p.hosts, h) {
				p.hosts = append(p.hosts, h)
			}
		}
	}
	slices.Sort(p.hosts)
	return p
}

// check returns nil when origin may connect.
func (p originPolicy) check(origin string) error {
	origin = strings.TrimSpace(origin)
	switch {
	case origin == "":
		if p.required {
			return errors.New("missing origin")
		}
		return nil
	case p.any, slices.Contains(p.exact, origin):
		return nil
	}
	if h := hostOf(origin); h != "" && slices.Contains(p.hosts, h) {
		return nil
	}
	if len(p.exact) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// acceptPatterns are the hosts handed to websocket.Accept, which matches them with filepath.Match.
func (p originPolicy) acceptPatterns() []string { return slices.Clone(p.hosts) }

// hostOf lower-cases the host of "scheme://host:port", "host:port" or a bare host.
func hostOf(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(s)
}
