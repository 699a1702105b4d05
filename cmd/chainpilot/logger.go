package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"

	"github.com/elee1766/chainpilot/src/config"
)

// createCLILogger logs to stderr with tint and, when a log file is
// configured, fans out to a file handler as well.
func createCLILogger(cfg config.LoggingConfig) (*slog.Logger, func()) {
	level := parseLogLevel(cfg.Level)

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
	})

	if cfg.File == "" {
		return slog.New(stderrHandler), func() {}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		slog.New(stderrHandler).Warn("failed to create log directory, using stderr only", "error", err)
		return slog.New(stderrHandler), func() {}
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.New(stderrHandler).Warn("failed to open log file, using stderr only", "error", err, "file", cfg.File)
		return slog.New(stderrHandler), func() {}
	}

	// the file gets everything down to debug; stderr stays at the configured level
	fileOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var fileHandler slog.Handler
	if cfg.Format == "text" {
		fileHandler = slog.NewTextHandler(file, fileOpts)
	} else {
		fileHandler = slog.NewJSONHandler(file, fileOpts)
	}

	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
	return logger, func() { file.Close() }
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
