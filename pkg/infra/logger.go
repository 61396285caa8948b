package infra

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Guizzs26/go-textmend/internal/config"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var logFile *os.File

func SetupLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			slog.Warn("Could not open log file, logging to stdout only", "file", cfg.LogFile, "error", err)
		} else {
			logFile = f
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	return slog.New(newHandler(out, cfg.LogFormat, level))
}

// CloseLogger flushes and closes the log file opened by SetupLogger, if any
func CloseLogger() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToUpper(format) {
	case "JSON":
		return slog.NewJSONHandler(w, opts)
	case "TINT":
		// Colours only when stdout is the sole sink and a terminal
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    w != os.Stdout || !isatty.IsTerminal(os.Stdout.Fd()),
		})
	default:
		return slog.NewTextHandler(w, opts)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
