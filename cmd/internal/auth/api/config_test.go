package authapi

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	def := DefaultConfig()

	if cfg.MaxBodyBytes != def.MaxBodyBytes {
		t.Fatalf("MaxBodyBytes=%d, want %d", cfg.MaxBodyBytes, def.MaxBodyBytes)
	}
	if cfg.AuditSchema != "huddle" {
		t.Fatalf("AuditSchema=%q", cfg.AuditSchema)
	}
	if cfg.TrustProxy {
		t.Fatalf("TrustProxy must default to false")
	}
}

func TestLoadConfigFromEnv_LockoutTiersEscalate(t *testing.T) {
	t.Setenv("HUDDLE_AUTH_LOGIN_LOCKOUT_SHORT_DURATION", "10m")
	t.Setenv("HUDDLE_AUTH_LOGIN_LOCKOUT_LONG_DURATION", "1m")
	t.Setenv("HUDDLE_AUTH_LOGIN_LOCKOUT_SEVERE_DURATION", "30s")

	cfg := LoadConfigFromEnv()

	if cfg.LockoutLongDuration != 10*time.Minute {
		t.Fatalf("long lockout must not be shorter than short lockout, got %v", cfg.LockoutLongDuration)
	}
	if cfg.LockoutSevereDuration != 10*time.Minute {
		t.Fatalf("severe lockout must not be shorter than long lockout, got %v", cfg.LockoutSevereDuration)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("HUDDLE_AUTH_LOGIN_IP_MAX", "-3")
	t.Setenv("HUDDLE_AUTH_LOGIN_IP_WINDOW", "soon")

	cfg := LoadConfigFromEnv()
	if cfg.LoginIPMax != 20 || cfg.LoginIPWindow != 5*time.Minute {
		t.Fatalf("expected defaults, got max=%d window=%v", cfg.LoginIPMax, cfg.LoginIPWindow)
	}
}
