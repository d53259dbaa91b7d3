package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps LOG_LEVEL values onto slog levels. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// SetupLogger builds the process logger: JSON to stdout and, when logFile is
// set, JSON to that file as well. The returned func closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	stdout := slog.NewJSONHandler(os.Stdout, opts)
	if logFile == "" {
		return slog.New(stdout), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stdout)
		logger.Error("Failed to open log file, using stdout only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	logger := slog.New(slogmulti.Fanout(stdout, slog.NewJSONHandler(file, opts)))
	return logger, file.Close
}

// SetupLoggerWithWriters fans out to arbitrary writers (for testing).
func SetupLoggerWithWriters(primary, secondary io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(primary, opts),
		slog.NewJSONHandler(secondary, opts),
	))
}
