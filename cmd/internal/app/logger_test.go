package app

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if _, ok := NewLogger("info", "json", false).Handler().(*slog.JSONHandler); !ok {
		t.Fatalf("json format should use the JSON handler")
	}
	if _, ok := NewLogger("info", "", false).Handler().(*slog.JSONHandler); !ok {
		t.Fatalf("empty format should default to JSON")
	}
	if _, ok := NewLogger("debug", "pretty", false).Handler().(*prettyHandler); !ok {
		t.Fatalf("pretty format should use the pretty handler")
	}
}
