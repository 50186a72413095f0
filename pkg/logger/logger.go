// Package logger provides the node's structured logging built on slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ErrLogSink is returned when the persistent log file cannot be opened.
// Unlike every other failure on the node, this one aborts boot.
var ErrLogSink = errors.New("log sink unavailable")

// Config holds the configuration for the logger.
type Config struct {
	// Output is the writer to send logs to (defaults to os.Stdout).
	Output io.Writer
	// Level is the minimum log level to output.
	Level slog.Level
	// AddSource adds source code position to log records.
	AddSource bool
	// FilePath, when set, appends every record to this file as well as Output.
	FilePath string
	// Now overrides the record timestamp, typically with network-synced time.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:     slog.LevelInfo,
		Output:    os.Stdout,
		AddSource: false,
	}
}

// New creates a new JSON logger with the provided configuration.
// FilePath is ignored here; use Open when a file sink is wanted.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	return slog.New(newHandler(cfg.Output, cfg))
}

// Open creates a logger that writes to Output and, when FilePath is set,
// appends to that file. The returned closer releases the file.
func Open(cfg *Config) (*slog.Logger, io.Closer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	if cfg.FilePath == "" {
		return slog.New(newHandler(cfg.Output, cfg)), nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrLogSink, cfg.FilePath, err)
	}

	return slog.New(newHandler(io.MultiWriter(cfg.Output, f), cfg)), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	if cfg.Now != nil {
		now := cfg.Now
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Time(slog.TimeKey, now().UTC())
			}
			return a
		}
	}

	return slog.NewJSONHandler(w, opts)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converts a string to a slog.Level.
// Supported values: "debug", "info", "warn", "error", in any case.
// Returns slog.LevelInfo if the level string is not recognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
