package password

import "sync"

// placeholderSecret is hashed once per process; its value never matters.
const placeholderSecret = "huddle-placeholder-credential"

// Verifier is the password-verification primitive used by login.
type Verifier interface {
	Verify(encodedHash, password string) (bool, error)
}

// Placeholder holds a hash computed with the active parameters so that a
// verification against it costs the same as one against a real user.
type Placeholder struct {
	cfg Config

	once sync.Once
	hash string
	err  error
}

// NewPlaceholder returns a lazily computed placeholder hash for cfg.
func NewPlaceholder(cfg Config) *Placeholder {
	return &Placeholder{cfg: cfg}
}

// Hash returns the placeholder hash, computing it on first use.
func (p *Placeholder) Hash() (string, error) {
	p.once.Do(func() {
		cfg := p.cfg
		cfg.Policy.MinLength = 1
		p.hash, p.err = cfg.Hash(placeholderSecret)
	})
	return p.hash, p.err
}
