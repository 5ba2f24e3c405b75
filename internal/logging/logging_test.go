package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSecretRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelDebug, "text"))

	tests := []struct {
		key    string
		value  string
		should bool
	}{
		{"private_key", "4c0883a6", true},
		{"API_KEY", "key456", true},
		{"password", "pass789", true},
		{"secret", "mysecret", true},
		{"rpc_url", "https://example.com", false},
		{"pipeline", "deposit", false},
		{"count", "42", false},
	}

	for _, tt := range tests {
		buf.Reset()
		logger.Info("test", tt.key, tt.value)
		output := buf.String()

		if tt.should {
			if !strings.Contains(output, "[redacted]") {
				t.Errorf("key %q should be redacted, output: %s", tt.key, output)
			}
			if strings.Contains(output, tt.value) {
				t.Errorf("key %q value %q should not appear, output: %s", tt.key, tt.value, output)
			}
		} else {
			if strings.Contains(output, "[redacted]") {
				t.Errorf("key %q should not be redacted, output: %s", tt.key, output)
			}
			if !strings.Contains(output, tt.value) {
				t.Errorf("key %q value %q should appear, output: %s", tt.key, tt.value, output)
			}
		}
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.level); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
		if NewWithLevel(tt.level, "console") == nil {
			t.Errorf("NewWithLevel(%q) returned nil", tt.level)
		}
	}
}

func TestConsoleFormatRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, "console"))
	logger.Info("keystore", "password", "hunter2")
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("console output leaked secret: %s", buf.String())
	}
}

func TestDedupeSuppressesIdenticalConsecutive(t *testing.T) {
	var buf bytes.Buffer
	logger := Dedupe(slog.New(newHandler(&buf, slog.LevelInfo, "text"))).With("pipeline", "deposit")

	logger.Info("yielding", "state", "YIELD")
	logger.Info("yielding", "state", "YIELD")
	logger.Info("yielding", "state", "YIELD")
	logger.Info("no new events", "state", "WAIT")
	logger.Info("yielding", "state", "YIELD")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "pipeline=deposit") {
		t.Fatalf("pipeline attribute missing: %s", lines[0])
	}
}

func TestDedupeDistinguishesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := Dedupe(slog.New(newHandler(&buf, slog.LevelInfo, "text")))

	logger.Info("queued events", "count", 1)
	logger.Info("queued events", "count", 2)
	logger.Warn("queued events", "count", 2)

	if n := strings.Count(buf.String(), "queued events"); n != 3 {
		t.Fatalf("expected 3 lines, got %d", n)
	}
}
