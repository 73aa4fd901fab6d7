package logger

import (
	"log/slog"
	"os"
	"strings"

	"sociohiro-backend/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging for one process. The api and
// the worker share a log stream, so every record carries the service name.
func InitLogger(cfg *config.Config, service string) {
	level := parseLevel(cfg.LogLevel, cfg.GinMode)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	Logger = slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", service)
	slog.SetDefault(Logger)

	Logger.Debug("Structured logging initialized", "level", level.String())
}

// parseLevel honours LOG_LEVEL and otherwise derives the level from the gin mode.
func parseLevel(name, ginMode string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if ginMode == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// With returns a component logger. Falls back to the default logger before InitLogger runs.
func With(args ...any) *slog.Logger {
	if Logger != nil {
		return Logger.With(args...)
	}
	return slog.Default().With(args...)
}

func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
