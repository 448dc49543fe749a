package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/shimamura/chattransport/internal/logging"
)

func setupLogger(format, level, logFile string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = logging.RotatingFile(logFile)
	}
	l := logging.New(format, lvl, w).With("app", "chatserver")
	logging.Set(l)
	return l
}
