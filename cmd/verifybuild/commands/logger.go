package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvLogLevel overrides the level selected by --verbose.
const EnvLogLevel = "VERIFYBUILD_LOG_LEVEL"

// parseLogLevel returns Debug for --verbose unless VERIFYBUILD_LOG_LEVEL names
// a level.
func parseLogLevel(verbose bool) slog.Level {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(raw)); err == nil {
			level = l
		}
	}
	return level
}

// NewLogger writes human-readable text when w is a terminal and JSON when it
// is piped or redirected.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupLogging installs the process logger on stderr.
func SetupLogging(verbose bool) {
	slog.SetDefault(NewLogger(os.Stderr, parseLogLevel(verbose)))
}
