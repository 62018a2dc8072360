package password

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// Pepper is a server-side secret mixed into every hash.
	// Hash and Verify refuse to run without it.
	Pepper []byte
}

// DefaultConfig returns a strong baseline suitable for a chat service.
// The pepper is left empty; FromEnv or the caller must supply it.
func DefaultConfig() Config {
	// Parallelism follows the host, clamped to [1..4] for predictable container usage.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // reasonable default for interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      12,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables.
// Unset variables keep DefaultConfig values; set but invalid ones are errors.
//
// Env surface:
// - HUDDLE_PASSWORD_PEPPER
// - HUDDLE_PASSWORD_MIN_LEN, HUDDLE_PASSWORD_MAX_LEN
// - HUDDLE_PASSWORD_REJECT_VERY_WEAK (true/false, yes/no, on/off, 1/0)
// - HUDDLE_ARGON2_MEMORY_KIB, HUDDLE_ARGON2_ITERATIONS, HUDDLE_ARGON2_PARALLELISM
// - HUDDLE_ARGON2_SALT_LEN, HUDDLE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("HUDDLE_PASSWORD_PEPPER")); v != "" {
		cfg.Pepper = []byte(v)
	}

	numeric := []struct {
		key      string
		min, max uint64
		set      func(uint64)
	}{
		{"HUDDLE_PASSWORD_MIN_LEN", 1, 1024, func(n uint64) { cfg.Policy.MinLength = int(n) }},
		{"HUDDLE_PASSWORD_MAX_LEN", 1, 4096, func(n uint64) { cfg.Policy.MaxLength = int(n) }},
		{"HUDDLE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(n uint64) { cfg.Params.MemoryKiB = uint32(n) }},
		{"HUDDLE_ARGON2_ITERATIONS", 1, 20, func(n uint64) { cfg.Params.Iterations = uint32(n) }},
		{"HUDDLE_ARGON2_PARALLELISM", 1, 64, func(n uint64) { cfg.Params.Parallelism = uint8(n) }},
		{"HUDDLE_ARGON2_SALT_LEN", 8, 64, func(n uint64) { cfg.Params.SaltLength = uint32(n) }},
		{"HUDDLE_ARGON2_KEY_LEN", 16, 64, func(n uint64) { cfg.Params.KeyLength = uint32(n) }},
	}
	for _, f := range numeric {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		n, err := parseBounded(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		f.set(n)
	}

	if v, ok := os.LookupEnv("HUDDLE_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("HUDDLE_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

// parseBounded keeps every value within [min, max]; callers narrow the result safely.
func parseBounded(s string, minVal, maxVal uint64) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.New("not an unsigned integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, errors.New("invalid boolean")
	}
}
