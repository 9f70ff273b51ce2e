package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"off", LevelNone},
		{"invalid", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFileLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "wellspace.log")

	l, err := New(LevelInfo, logPath, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("layout %q saved", "default")
	l.Debug("should not appear")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `[INFO] [test] layout "default" saved`) {
		t.Errorf("missing info line, got %q", content)
	}
	if strings.Contains(content, "should not appear") {
		t.Errorf("debug line leaked: %q", content)
	}
}

func TestWithPrefixChains(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelDebug, &buf, "workspace").WithPrefix("fence")
	l.Debug("discarded")
	if !strings.Contains(buf.String(), "[workspace:fence] discarded") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestDisabledLogger(t *testing.T) {
	l, err := New(LevelNone, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Error("nothing")
	if err := l.Close(); err != nil {
		t.Errorf("Close on discard logger: %v", err)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelInfo, &buf, "")
	sl := slog.New(NewSlogHandler(l)).WithGroup("http")
	sl.Info("request", "status", 200)
	sl.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "request http.status=200") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record should be filtered: %q", out)
	}
}
