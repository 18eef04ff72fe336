// Package logging provides structured logging for the trajcut agent.
// It uses log/slog, writing JSON by default and text on an interactive
// terminal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Options controls logger construction.
type Options struct {
	Level string
	// Format is "json", "text", or empty to pick by terminal detection.
	Format string
	Output io.Writer
}

// NewLogger creates a new structured logger with the specified log level,
// writing JSON to stdout. Supported levels: debug, info, warn, error
func NewLogger(level string) *slog.Logger {
	return New(Options{Level: level, Format: "json"})
}

// New builds a logger from opts. When Format is empty and Output is a
// terminal, a text handler is used.
func New(opts Options) *slog.Logger {
	lvl := ParseLevel(opts.Level)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	hopts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location for debug level
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	switch resolveFormat(opts.Format, out) {
	case "text":
		handler = slog.NewTextHandler(out, hopts)
	default:
		handler = slog.NewJSONHandler(out, hopts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func resolveFormat(format string, out io.Writer) string {
	switch strings.ToLower(format) {
	case "json":
		return "json"
	case "text":
		return "text"
	}
	if f, ok := out.(*os.File); ok && IsTerminal(f) {
		return "text"
	}
	return "json"
}

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// WithRequestID returns a logger with request_id attribute
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithComponent returns a logger with component attribute
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithProject returns a logger with project attribute
func WithProject(logger *slog.Logger, project string) *slog.Logger {
	return logger.With("project", project)
}

// WithClip returns a logger with clip attribute
func WithClip(logger *slog.Logger, slug string) *slog.Logger {
	return logger.With("clip", slug)
}

// WithJobID returns a logger with job_id attribute
func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With("job_id", jobID)
}

// SanitizeToken masks a token for safe logging.
// Shows first 4 and last 4 characters only.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizePath replaces the home directory prefix with ~.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
