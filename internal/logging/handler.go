// Package logging configures the process-wide slog logger.
//
// On a terminal the output is colorized, human-readable text:
//
//	10:04:05.000 INF starting medagent version=dev
//
// Everywhere else it is one JSON object per line.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"medagent/config"
)

// redactedKeys are attribute keys whose values never reach the log output.
var redactedKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"client_secret": {},
	"password":      {},
	"secret":        {},
}

const redacted = "[REDACTED]"

// New builds a logger writing to w according to cfg.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	return slog.New(NewHandler(cfg, w))
}

// Setup installs the logger for cfg as the slog default, writing to stderr.
func Setup(cfg config.LogConfig) *slog.Logger {
	logger := New(cfg, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

// NewHandler returns the slog.Handler for cfg. Format "auto" picks text on a
// terminal and JSON otherwise.
func NewHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	level := ParseLevel(cfg.Level)
	tty := isTerminal(w)

	switch strings.ToLower(cfg.Format) {
	case "json":
		return jsonHandler(w, level)
	case "text":
		return textHandler(w, level, !tty)
	default:
		if tty {
			return textHandler(w, level, false)
		}
		return jsonHandler(w, level)
	}
}

func textHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly + ".000",
		NoColor:     noColor,
		ReplaceAttr: redact,
	})
}

func jsonHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
