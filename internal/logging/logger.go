// Package logging provides the kernel's structured logger, a thin wrapper
// over log/slog so callers don't each construct their own handler.
package logging

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	initOnce sync.Once
)

// Config selects the logger's verbosity and output format.
type Config struct {
	Level  slog.Level
	Writer *os.File // nil defaults to stderr
	JSON   bool
}

// Init installs the global logger. Each call replaces the logger installed
// by any earlier call.
func Init(cfg Config) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger = slog.New(handler)
}

// Get returns the process logger, lazily initializing it with defaults
// (Info level, text format, stderr) on first use.
func Get() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	initOnce.Do(func() {
		Init(Config{Level: slog.LevelInfo})
	})

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
