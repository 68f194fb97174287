package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogLevel is one of the accepted logging.level values.
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info", "":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
}

// setupLogger returns a text logger writing to w at the given level.
func setupLogger(level LogLevel, w io.Writer) *slog.Logger {
	var l slog.Level
	switch level {
	case LogLevelError:
		l = slog.LevelError
	case LogLevelWarn:
		l = slog.LevelWarn
	case LogLevelDebug:
		l = slog.LevelDebug
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
