package password

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var b64 = base64.RawStdEncoding

// phc is a parsed "$argon2id$v=19$m=<KiB>,t=<iter>,p=<par>$<salt>$<key>" string.
type phc struct {
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memoryKiB, p.iterations, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, ErrInvalidHash
	}

	var p phc
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return phc{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phc{}, ErrInvalidHash
		}
		switch k {
		case "m":
			p.memoryKiB = uint32(n)
		case "t":
			p.iterations = uint32(n)
		case "p":
			if n > 255 {
				return phc{}, ErrInvalidHash
			}
			p.parallelism = uint8(n)
		default:
			return phc{}, ErrInvalidHash
		}
	}
	if p.memoryKiB == 0 || p.iterations == 0 || p.parallelism == 0 {
		return phc{}, ErrInvalidHash
	}

	var err error
	if p.salt, err = b64.DecodeString(parts[4]); err != nil {
		return phc{}, ErrInvalidHash
	}
	if p.key, err = b64.DecodeString(parts[5]); err != nil {
		return phc{}, ErrInvalidHash
	}
	return p, nil
}

// affordable rejects stored hashes whose cost is far above the configured one,
// so a tampered row cannot pin the CPU. Older, cheaper hashes still verify.
func (p phc) affordable(limits Argon2idParams) bool {
	return p.memoryKiB <= limits.MemoryKiB*2 &&
		p.iterations <= limits.Iterations*2 &&
		uint32(p.parallelism) <= uint32(limits.Parallelism)*2 &&
		len(p.salt) >= 8 && len(p.salt) <= 64 &&
		len(p.key) >= 16 && len(p.key) <= 128
}

func (p phc) derive(secret []byte) []byte {
	return argon2.IDKey(secret, p.salt, p.iterations, p.memoryKiB, p.parallelism, uint32(len(p.key))) // #nosec G115 -- key length bounded by affordable
}

// Hash validates password against the policy and returns its Argon2id PHC string.
func (c Config) Hash(password string) (string, error) {
	if len(c.Pepper) == 0 {
		return "", ErrPepperMissing
	}
	if err := c.Validate(password); err != nil {
		return "", err
	}

	p := phc{
		memoryKiB:   c.Params.MemoryKiB,
		iterations:  c.Params.Iterations,
		parallelism: c.Params.Parallelism,
		salt:        make([]byte, c.Params.SaltLength),
		key:         make([]byte, c.Params.KeyLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	p.key = p.derive(c.peppered(password))
	return p.String(), nil
}

// Verify reports whether password matches encodedHash.
// A malformed or unaffordable hash yields ErrInvalidHash; a mismatch is (false, nil).
func (c Config) Verify(encodedHash, password string) (bool, error) {
	if len(c.Pepper) == 0 {
		return false, ErrPepperMissing
	}
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if !p.affordable(c.Params) {
		return false, ErrInvalidHash
	}
	return subtle.ConstantTimeCompare(p.derive(c.peppered(password)), p.key) == 1, nil
}

// peppered keys an HMAC with the server secret; argon2.IDKey has no secret input.
func (c Config) peppered(password string) []byte {
	m := hmac.New(sha256.New, c.Pepper)
	_, _ = m.Write([]byte(password))
	return m.Sum(nil)
}
