// Package logging provides the process-wide structured logger used by
// every tier. Grounded on distributed-agent/pkg/logger/logger.go's
// slog.NewJSONHandler over an io.MultiWriter of stdout and a rotating
// lumberjack.Logger, generalized to take the sink-selection options
// from spec §6 (logging_level, write_console, write_console_only)
// instead of being hardcoded to "always both".
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New per spec §6's "logging_level, write_console,
// write_console_only" row.
type Options struct {
	LogFilePath      string
	Level            string
	WriteConsole     bool
	WriteConsoleOnly bool
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

// New builds a JSON slog.Logger writing to the selected sinks. In
// write_console_only mode it writes to stdout only and LogFilePath is
// not used; otherwise it writes to a rotating LogFilePath, plus stdout
// when WriteConsole is set.
func New(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	if opts.WriteConsoleOnly {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.LogFilePath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     0, // ignore age
		Compress:   false,
	}

	var writer io.Writer = rotator
	if opts.WriteConsole {
		writer = io.MultiWriter(os.Stdout, rotator)
	}
	return slog.New(slog.NewJSONHandler(writer, handlerOpts))
}
