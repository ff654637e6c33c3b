package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redsafetw/edge-core/internal/infrastructure/config"
)

// Logger is the slog-backed structured logger threaded through every
// Edge Core component. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml. Every
// record carries service and version fields so fleet log aggregation
// can tell Edge Core instances apart.
//
// Format "text" is for terminals; anything else means JSON. Output
// "stderr" or "stdout" (the default). Unknown levels fall back to info.
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "edge-core"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// Default is the JSON/info/stdout logger used during startup, before
// the configuration file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// With returns a child logger carrying extra default attributes,
// typically a component tag:
//
//	trackerLog := log.With("component", "tracker")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
