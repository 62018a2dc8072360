package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://chat.example.com", want: "wss://chat.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func newTestApp(t *testing.T) *httptest.Server {
	t.Helper()

	t.Setenv("HUDDLE_JWT_SECRET", "app-test-secret-app-test-secret-00")
	t.Setenv("HUDDLE_PASSWORD_PEPPER", "app-test-pepper-0000")
	t.Setenv("HUDDLE_COOKIE_SECURE", "false")
	t.Setenv("HUDDLE_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("HUDDLE_ARGON2_ITERATIONS", "1")
	t.Setenv("HUDDLE_ARGON2_PARALLELISM", "1")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(Config{HTTPAddr: "127.0.0.1:0"}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, c *http.Client, url, body string) *http.Response {
	t.Helper()
	resp, err := c.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestApp_InMemoryEndToEnd(t *testing.T) {
	srv := newTestApp(t)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	c := &http.Client{Jar: jar}

	resp, err := c.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header=%q", got)
	}

	resp, err = c.Get(srv.URL + "/users/me")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous me status=%d want 401", resp.StatusCode)
	}

	creds := `{"email":"ada@example.com","password":"correct horse battery"}`
	resp = postJSON(t, c, srv.URL+"/auth/register", creds)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status=%d", resp.StatusCode)
	}

	resp = postJSON(t, c, srv.URL+"/auth/login", creds)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", resp.StatusCode)
	}

	resp, err = c.Get(srv.URL + "/users/me")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	var me struct {
		Email         string `json:"email"`
		AccountStatus string `json:"accountStatus"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	_ = resp.Body.Close()
	if me.Email != "ada@example.com" || me.AccountStatus != "PENDING" {
		t.Fatalf("me=%+v", me)
	}

	resp = postJSON(t, c, srv.URL+"/groups", `{"name":"Book club","channels":["general"]}`)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group status=%d", resp.StatusCode)
	}

	resp, err = c.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	for _, name := range []string{
		`huddle_auth_logins_total{result="success"}`,
		"huddle_session_verifications_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics missing %s", name)
		}
	}

	resp = postJSON(t, c, srv.URL+"/auth/logout", `{}`)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status=%d", resp.StatusCode)
	}

	resp, err = c.Get(srv.URL + "/users/me")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status=%d want 401", resp.StatusCode)
	}
}

func TestNew_RejectsMissingPepper(t *testing.T) {
	t.Setenv("HUDDLE_JWT_SECRET", "app-test-secret-app-test-secret-00")
	t.Setenv("HUDDLE_PASSWORD_PEPPER", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(Config{}, log); !errors.Is(err, ErrPepperRequired) {
		t.Fatalf("err=%v want ErrPepperRequired", err)
	}
}
