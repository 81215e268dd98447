package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/marminbh/toxicity-score-svc/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"  WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := New(config.LogConfig{Level: "info", Path: dir, File: "worker.log"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("hello from test")
	Sync(l)

	raw, err := os.ReadFile(filepath.Join(dir, "worker.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(raw)
	if !strings.Contains(line, `"message":"hello from test"`) {
		t.Errorf("log file missing message, got %s", line)
	}
	if !strings.Contains(line, `"timestamp":`) {
		t.Errorf("log file missing timestamp key, got %s", line)
	}
}

func TestNewWithoutFile(t *testing.T) {
	l, err := New(config.LogConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level should be enabled")
	}
}
