package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("shipment indexed", "tracking", "TRACK123456")

	out := buf.String()
	if !strings.Contains(out, "shipment indexed") {
		t.Errorf("output %q missing message", out)
	}
	if !strings.Contains(out, "tracking=TRACK123456") {
		t.Errorf("output %q missing attribute", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("ready")

	out := buf.String()
	if !strings.Contains(out, `"msg":"ready"`) {
		t.Errorf("output %q is not JSON formatted", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("output %q contains messages below warn level", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("output %q missing warn message", out)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept any call.
	logger.Info("discarded", "key", "value")
	logger.Error("also discarded")
}
