package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.log")
	logger, closer, err := New(slog.LevelInfo, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer, err := New(slog.LevelDebug, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger == nil {
		t.Fatal("nil logger")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("no-op closer returned %v", err)
	}
}

func TestTimerLogsDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf.log")
	logger, closer, err := New(slog.LevelInfo, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	timer := StartTimer(logger, "dispatch")
	timer.Stop()
	closer.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "dispatch took") {
		t.Errorf("timer entry missing: %q", data)
	}
}
