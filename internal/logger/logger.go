package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Level overrides GOFIREWALLD_DEBUG when set.
	Level string
	// File receives the log instead of stderr. GOFIREWALLD_LOG_FILE is used
	// when empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init installs the default slog logger. The returned closer releases the
// log file, if any.
func Init(opts Options) (io.Closer, error) {
	level := slog.LevelInfo
	if os.Getenv("GOFIREWALLD_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	if opts.Level != "" {
		parsed, err := ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	var writer io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if path := resolveLogPath(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			Compress:   true,
		}
		writer = rotated
		closer = rotated
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return closer, nil
}

func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "":
		return slog.LevelInfo, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q (use debug|info|warn|error)", value)
	}
}

// DefaultMonitorLog is where the terminal monitor logs, since it owns the
// terminal.
func DefaultMonitorLog() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "gofirewalld", "fwmon.log")
}

func resolveLogPath(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv("GOFIREWALLD_LOG_FILE")
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
