// Package logging builds the process logger: JSON records to stdout, teed
// into a size-rotated file when a log directory is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New
type Options struct {
	// Dir enables the rotated log file when non-empty
	Dir       string
	File      string
	Level     string
	MaxSizeMB int
	// MaxBackups and MaxAgeDays default to 3 and 7
	MaxBackups int
	MaxAgeDays int
	// Console defaults to os.Stdout
	Console io.Writer
}

// Logger pairs the slog logger with the rotated file it writes to, if any
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// New builds a JSON logger. The returned Logger must be closed to release the file.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	out := console
	var file *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}

		name := opts.File
		if name == "" {
			name = "service.log"
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, name),
			MaxSize:    defaultInt(opts.MaxSizeMB, 30),
			MaxBackups: defaultInt(opts.MaxBackups, 3),
			MaxAge:     defaultInt(opts.MaxAgeDays, 7),
		}
		out = io.MultiWriter(console, file)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Close flushes and closes the rotated file
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps debug/info/warn/error to a slog level; empty means info
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: invalid level %q: %w", s, err)
	}
	return level, nil
}

// Component scopes a logger to one part of the process
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
