// Package logging builds the process slog logger and owns its runtime level.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level is a slog.Leveler whose base level can be overridden by a debug
// switch at runtime, e.g. from a config hot reload.
type Level struct {
	mu    sync.Mutex
	v     slog.LevelVar
	base  slog.Level
	debug bool
}

// NewLevel returns a Level at base with debug off.
func NewLevel(base slog.Level) *Level {
	l := &Level{base: base}
	l.v.Set(base)
	return l
}

// Level implements slog.Leveler.
func (l *Level) Level() slog.Level { return l.v.Level() }

// SetBase changes the level used while debug is off.
func (l *Level) SetBase(base slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base = base
	l.applyLocked()
}

// SetDebug forces debug logging on or restores the base level.
func (l *Level) SetDebug(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = on
	l.applyLocked()
}

func (l *Level) applyLocked() {
	if l.debug && l.base > slog.LevelDebug {
		l.v.Set(slog.LevelDebug)
		return
	}
	l.v.Set(l.base)
}

// New creates a logger writing to w. format is "json" or "text" (default text).
// A nil w writes to stderr.
func New(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
