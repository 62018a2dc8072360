package app

import (
	"errors"
	"strings"
	"testing"

	"huddle/cmd/internal/auth/session"
	"huddle/cmd/security/password"
)

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	strongSess := session.DefaultConfig()
	strongSess.SigningSecret = []byte(strings.Repeat("s", 32))
	strongSess.Cookie.Secure = true

	weakSess := strongSess
	weakSess.SigningSecret = []byte("short")

	insecureSess := strongSess
	insecureSess.Cookie.Secure = false

	strongPW := password.DefaultConfig()
	strongPW.Pepper = []byte(strings.Repeat("p", 16))

	shortPW := strongPW
	shortPW.Pepper = []byte("pep")

	cases := []struct {
		name   string
		strict bool
		sess   session.Config
		pw     password.Config
		want   error
	}{
		{name: "no pepper", strict: false, sess: weakSess, pw: password.DefaultConfig(), want: ErrPepperRequired},
		{name: "relaxed allows short secrets", strict: false, sess: weakSess, pw: shortPW, want: nil},
		{name: "strict ok", strict: true, sess: strongSess, pw: strongPW, want: nil},
		{name: "strict weak secret", strict: true, sess: weakSess, pw: strongPW, want: ErrWeakSigningSecret},
		{name: "strict short pepper", strict: true, sess: strongSess, pw: shortPW, want: ErrPepperRequired},
		{name: "strict insecure cookies", strict: true, sess: insecureSess, pw: strongPW, want: ErrInsecureCookies},
	}

	for _, tc := range cases {
		err := ValidateSecurityConfig(Config{RequireStrongSecrets: tc.strict}, tc.sess, tc.pw)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
}
