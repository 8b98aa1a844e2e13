package logger

import (
	"log/slog"
	"os"

	"github.com/seehafer/fda-guidance-navigator/internal/config"
)

var Logger *slog.Logger

// InitLogger sets up JSON structured logging. Debug mode lowers the level
// and adds source locations; both binaries (API and worker) call this so
// their log lines share one shape.
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	})
	Logger = slog.New(handler).With("service", "fda-guidance-navigator")

	Logger.Info("Structured logging initialized", "level", level.String())
}

// Package-level helpers; safe to call before InitLogger.

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
