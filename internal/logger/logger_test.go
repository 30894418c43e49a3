package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)

	log.Info("engine ready", "n_ctx", 512)
	out := buf.String()
	if !strings.Contains(out, "engine ready") {
		t.Fatalf("output misses the message: %q", out)
	}
	if !strings.Contains(out, "n_ctx=512") {
		t.Fatalf("output misses the attribute: %q", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Fatalf("output misses the level: %q", out)
	}
}

func TestPrettyHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)

	log.Warn("note", "reason", "two words")
	if !strings.Contains(buf.String(), `reason="two words"`) {
		t.Fatalf("values with spaces should be quoted: %q", buf.String())
	}
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelWarn)

	log.Debug("hidden")
	log.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("records below the level leaked: %q", buf.String())
	}
	log.Error("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatal("error record should pass the filter")
	}
}

func TestWithCarriesAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug).With("turn", "abc")

	log.Info("sampling")
	if !strings.Contains(buf.String(), "turn=abc") {
		t.Fatalf("With attributes lost: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	log := Discard()
	log.Error("nothing should happen")
	log.With("k", "v").Info("still nothing")
}
