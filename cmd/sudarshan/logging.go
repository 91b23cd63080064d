package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/sudarshan/internal/config"
)

// newLogger builds the JSON logger. When log.file is set, output is tee'd to
// a rotating file. The returned func closes the file.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	var w io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.Log.File != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
		w = io.MultiWriter(os.Stdout, fileLogger)
		closeFn = func() { _ = fileLogger.Close() }
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})), closeFn
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
