// Package logging builds the slog loggers used across the simulator and
// provides a scoped timer for coarse performance logging.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// ParseLevel maps a config string to a slog level. Unknown strings
// default to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text logger at the given level writing to stderr, and
// additionally to filePath when non-empty. The returned closer releases
// the log file; it is a no-op when no file was opened.
func New(level slog.Level, filePath string) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Timer measures one named operation. Stop logs "<op> took Nms" at info
// level.
type Timer struct {
	logger *slog.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing op.
func StartTimer(logger *slog.Logger, op string) *Timer {
	return &Timer{logger: logger, op: op, start: time.Now()}
}

// Stop logs the elapsed time.
func (t *Timer) Stop() {
	t.logger.Info(fmt.Sprintf("%s took %dms", t.op, time.Since(t.start).Milliseconds()))
}
