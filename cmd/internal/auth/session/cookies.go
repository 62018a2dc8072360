package session

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "auth"
	RefreshCookieName = "refresh"
)

// Cookies moves credentials between the verifier and HTTP headers.
// Both cookies share attributes and a max-age equal to the refresh lifetime,
// so the access cookie's subject stays readable for the refresh branch.
type Cookies struct {
	cfg    CookieConfig
	maxAge time.Duration
}

// NewCookies builds the cookie transport from cfg.
func NewCookies(cfg Config) Cookies {
	c := cfg.Cookie
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return Cookies{cfg: c, maxAge: cfg.RefreshTTL}
}

// Read extracts both credentials from r. Missing cookies yield empty strings.
func (c Cookies) Read(r *http.Request) Credentials {
	var creds Credentials
	if ck, err := r.Cookie(AccessCookieName); err == nil {
		creds.Access = ck.Value
	}
	if ck, err := r.Cookie(RefreshCookieName); err == nil {
		creds.Refresh = ck.Value
	}
	return creds
}

// Set appends Set-Cookie headers for freshly issued credentials.
func (c Cookies) Set(h http.Header, iss Issued) {
	c.add(h, c.cookie(AccessCookieName, iss.AccessToken, int(c.maxAge/time.Second)))
	c.add(h, c.cookie(RefreshCookieName, iss.Refresh.Token, int(c.maxAge/time.Second)))
}

// Clear appends Set-Cookie headers expiring both credentials.
// It writes headers directly so the realtime handshake can use it on the upgrade response.
func (c Cookies) Clear(h http.Header) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		ck := c.cookie(name, "", -1)
		ck.Expires = time.Unix(0, 0)
		c.add(h, ck)
	}
}

// Apply writes whatever cookie mutation out demands: clear on deny, set after a rotation.
// Followers and plain valid-access callers leave cookies untouched.
func (c Cookies) Apply(h http.Header, out Outcome) {
	switch {
	case !out.Accepted():
		c.Clear(h)
	case out.Issued != nil:
		c.Set(h, *out.Issued)
	}
}

func (c Cookies) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   c.cfg.Secure,
		HttpOnly: true,
		SameSite: c.cfg.SameSite,
	}
}

func (c Cookies) add(h http.Header, ck *http.Cookie) {
	if v := ck.String(); v != "" {
		h.Add("Set-Cookie", v)
	}
}
