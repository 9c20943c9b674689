// Package logging holds the slog conventions shared across the module.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Err is the canonical attribute for error values.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// Setup installs the default logger at the configured level. Unknown levels
// fall back to info.
func Setup(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
