package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/damaru/doorbell/internal/infrastructure/config"
)

// serviceName is attached to every record as the service attribute.
const serviceName = "doorbell"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the output.
var secretKeys = map[string]bool{
	"password": true,
	"secret":   true,
	"token":    true,
}

// Logger is the relay's structured logger. The embedded *slog.Logger
// carries the service and version attributes on every record.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
// Unknown formats fall back to JSON and unknown outputs to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	return &Logger{Logger: slog.New(newHandler(outputWriter(cfg.Output), cfg, version))}
}

// newHandler is New without the output lookup, so tests can capture records.
func newHandler(w io.Writer, cfg config.LoggingConfig, version string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels,
// case-insensitively; anything else is info.
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

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// With returns a child Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child Logger tagged component=name.
//
//	mqttLog := logger.Component("mqtt")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the startup logger used until the configuration is loaded:
// JSON at info level on stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
