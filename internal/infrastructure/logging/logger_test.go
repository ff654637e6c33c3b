package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/redsafetw/edge-core/internal/infrastructure/config"
)

func TestNewRespectsLevel(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"}, "test")

	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !logger.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn should pass at warn level")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Error("error should pass at warn level")
	}
}

func TestNewFormats(t *testing.T) {
	// Both formats and both outputs must construct without panicking.
	for _, cfg := range []config.LoggingConfig{
		{Level: "debug", Format: "text", Output: "stderr"},
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "info", Format: "", Output: ""},
	} {
		if logger := New(cfg, "test"); logger == nil {
			t.Fatalf("New(%+v) returned nil", cfg)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWithReturnsChild(t *testing.T) {
	logger := Default()
	child := logger.With("component", "tracker")

	if child == nil {
		t.Fatal("With() returned nil")
	}
	if child == logger {
		t.Error("With() should return a distinct logger")
	}
	// The parent's level carries over.
	if !child.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("child should keep the parent's info level")
	}
}
