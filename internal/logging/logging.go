// Package logging sets up the process slog logger. The TUI owns the
// terminal, so records go to a file; stderr is only used when the file
// cannot be opened.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger bundles the slog logger with its level and log file.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
	path  string
}

// Open creates a text logger writing to path at the given level. When path
// is empty or cannot be opened, records go to stderr instead.
func Open(path, level string) *Logger {
	l := &Logger{level: &slog.LevelVar{}}
	l.level.Set(ParseLevel(level))

	var w io.Writer = os.Stderr
	if path != "" {
		if f, err := openFile(path); err == nil {
			l.file = f
			l.path = path
			w = f
		}
	}
	return l.attach(w)
}

// New wraps an arbitrary writer. Tests use it to capture output.
func New(w io.Writer, level string) *Logger {
	l := &Logger{level: &slog.LevelVar{}}
	l.level.Set(ParseLevel(level))
	return l.attach(w)
}

func (l *Logger) attach(w io.Writer) *Logger {
	l.Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.level}))
	return l
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Path is the log file in use, or "" when logging to stderr.
func (l *Logger) Path() string { return l.path }

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level string) { l.level.Set(ParseLevel(level)) }

// Level reports the current level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps debug/info/warn/error to slog levels; anything else is info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
