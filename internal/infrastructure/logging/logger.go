package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

// ServiceName is attached to every record as the "service" attribute.
const ServiceName = "platformd"

const logFileMode = 0o640

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Logger is a slog.Logger sharing one adjustable level with every logger
// derived from it. A *Logger satisfies the Logger interfaces declared by
// the component packages.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	base  slog.Level
}

// New builds the daemon logger. cfg.Output is "stdout", "stderr" or a file
// path opened for appending; the returned closer releases that file.
func New(cfg config.LoggingConfig, version string) (*Logger, io.Closer, error) {
	switch out := strings.TrimSpace(cfg.Output); strings.ToLower(out) {
	case "", "stdout":
		return NewWithWriter(os.Stdout, cfg, version), nopCloser{}, nil
	case "stderr":
		return NewWithWriter(os.Stderr, cfg, version), nopCloser{}, nil
	default:
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return NewWithWriter(f, cfg, version), f, nil
	}
}

// NewWithWriter builds a logger on w: JSON unless cfg.Format is "text".
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	l := &Logger{level: new(slog.LevelVar), base: parseLevel(cfg.Level)}
	l.level.Set(l.base)

	opts := &slog.HandlerOptions{Level: l.level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	l.Logger = slog.New(h).With("service", ServiceName, "version", version)
	return l
}

// parseLevel accepts the slog level names plus "warning"; anything else
// is info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SetLevel changes the level of this logger and its children.
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// ToggleDebug flips between debug and the configured level and returns the
// level now in effect.
func (l *Logger) ToggleDebug() slog.Level {
	next := slog.LevelDebug
	if l.level.Level() == slog.LevelDebug {
		next = l.base
	}
	l.level.Set(next)
	return next
}

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	child := *l
	child.Logger = l.Logger.With(args...)
	return &child
}

// Component returns a child logger tagged component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used until the configuration is loaded.
func Default() *Logger {
	return NewWithWriter(os.Stderr, config.LoggingConfig{}, "dev")
}

// Discard drops everything below error and writes nothing.
func Discard() *Logger {
	return NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}
