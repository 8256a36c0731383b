package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Strob0t/TaskPilot/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	log := New(config.Logging{Level: "error", Service: "test"})
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at error level")
	}
	if !log.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	if got := CorrelationID(ctx); got != "corr-1" {
		t.Errorf("got %q", got)
	}
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("empty context: got %q", got)
	}
}
