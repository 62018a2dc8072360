package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("HUDDLE_TEST_STR", "  value ")
	t.Setenv("HUDDLE_TEST_BOOL", "yes")
	t.Setenv("HUDDLE_TEST_INT", "-4")
	t.Setenv("HUDDLE_TEST_INT32", "0")
	t.Setenv("HUDDLE_TEST_DUR", "250ms")
	t.Setenv("HUDDLE_TEST_CSV", "a, ,b,")

	if got := EnvString("HUDDLE_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString=%q", got)
	}
	if got := EnvString("HUDDLE_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("EnvString unset=%q", got)
	}
	if got := EnvBool("HUDDLE_TEST_BOOL", true); got != true {
		t.Fatalf("EnvBool unparsable should keep default")
	}
	if got := EnvInt("HUDDLE_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt negative=%d want default", got)
	}
	if got := EnvInt32("HUDDLE_TEST_INT32", 3); got != 0 {
		t.Fatalf("EnvInt32 zero=%d", got)
	}
	if got := EnvDuration("HUDDLE_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("EnvDuration=%v", got)
	}

	got := EnvCSV("HUDDLE_TEST_CSV")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("EnvCSV=%q", got)
	}
	if EnvCSV("HUDDLE_TEST_UNSET") != nil {
		t.Fatalf("EnvCSV unset should be nil")
	}
}
