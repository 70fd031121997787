// Package saptlog sets up structured logging for the sapt CLI tools.
// The core library packages never install a global logger and take no
// logger of their own; only the CLI tools log, through the logger Setup
// builds.
package saptlog

import (
	"io"
	"log/slog"
	"os"
)

// Config controls how a CLI tool sets up logging.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is an optional file to also write JSON log lines to,
	// behind size-based rotation.
	FilePath string
	// MaxSizeMB is the rotation threshold for FilePath, in megabytes.
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept next to FilePath.
	MaxFiles int
	// WriteToStderr mirrors log lines to stderr in addition to FilePath.
	WriteToStderr bool
}

// DefaultConfig returns the quiet, stderr-only default used by the CLI
// tools.
func DefaultConfig() Config {
	return Config{Level: "info", MaxSizeMB: 10, MaxFiles: 5, WriteToStderr: true}
}

// DebugConfig returns DefaultConfig at debug level; mtt-lexcount uses it
// under -v.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a *slog.Logger per cfg and returns a cleanup func that
// closes any opened file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	cleanup := func() {}

	if cfg.FilePath != "" {
		maxSize, maxFiles := cfg.MaxSizeMB, cfg.MaxFiles
		if maxSize <= 0 {
			maxSize = DefaultConfig().MaxSizeMB
		}
		if maxFiles <= 0 {
			maxFiles = DefaultConfig().MaxFiles
		}
		w, err := NewRotatingWriter(cfg.FilePath, maxSize, maxFiles)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, w)
		cleanup = func() { _ = w.Close() }
	}
	if cfg.WriteToStderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(handler), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
