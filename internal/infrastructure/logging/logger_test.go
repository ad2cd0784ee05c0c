package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse JSON output %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNew_Outputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "", "STDERR"} {
		logger, closer, err := New(config.LoggingConfig{Level: "info", Output: output}, "1.0.0")
		if err != nil || logger == nil {
			t.Fatalf("New(output=%q) = %v, %v", output, logger, err)
		}
		if err := closer.Close(); err != nil {
			t.Errorf("Close() for %q error = %v", output, err)
		}
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platformd.log")
	if err := os.WriteFile(path, []byte("{\"msg\":\"earlier\"}\n"), 0o600); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	logger, closer, err := New(config.LoggingConfig{Level: "info", Output: path}, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("gate opened", "gate", "generator-starter")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	entries := decodeLines(t, bytes.NewBuffer(data))
	if len(entries) != 2 || entries[0]["msg"] != "earlier" || entries[1]["gate"] != "generator-starter" {
		t.Errorf("log file entries = %v, want the old line kept and one appended", entries)
	}
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "platformd.log")
	if _, _, err := New(config.LoggingConfig{Output: path}, "1.0.0"); err == nil {
		t.Error("New() error = nil for a path in a missing directory")
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "TEXT"}, "1.2.3")

	logger.Debug("binding applied", "binding", "dbus-pump")

	out := buf.String()
	if !strings.Contains(out, "msg=\"binding applied\"") || !strings.Contains(out, "service=platformd") {
		t.Errorf("text output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" Warning ", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogger_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info"}, "test-version")

	logger.Info("test message", "key", "value")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["service"] != ServiceName || e["version"] != "test-version" {
		t.Errorf("default fields = %v", e)
	}
	if e["msg"] != "test message" || e["key"] != "value" {
		t.Errorf("entry = %v", e)
	}
}

func TestLogger_ComponentAndWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info"}, "v")

	child := logger.Component("supervise").With("service", "hostapd")
	if child == logger {
		t.Fatal("expected child logger to be different from parent")
	}
	child.Warn("supervisor command failed")

	e := decodeLines(t, &buf)[0]
	if e["component"] != "supervise" {
		t.Errorf("component = %v, want supervise", e["component"])
	}
}

func TestLogger_SetLevelAffectsChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info"}, "v")
	child := logger.Component("gate")

	child.Debug("hidden")
	logger.SetLevel("debug")
	child.Debug("visible")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["msg"] != "visible" {
		t.Errorf("entries = %v, want only the message logged after SetLevel", entries)
	}
}

func TestLogger_ToggleDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn"}, "v")
	child := logger.Component("tree")

	if got := logger.ToggleDebug(); got != slog.LevelDebug {
		t.Fatalf("first ToggleDebug() = %v, want debug", got)
	}
	child.Debug("visible")
	if got := logger.ToggleDebug(); got != slog.LevelWarn {
		t.Fatalf("second ToggleDebug() = %v, want the configured warn", got)
	}
	child.Info("hidden")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["msg"] != "visible" {
		t.Errorf("entries = %v", entries)
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
	d := Discard()
	d.Error("dropped")
	d.SetLevel("debug")
}
