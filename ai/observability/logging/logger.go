// Package logging configures structured logging for repurposing runs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	// FormatText writes key=value lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Options configures NewHandler.
type Options struct {
	Level  slog.Level
	Format Format
	// Output defaults to stderr so stdout stays clean for results.
	Output io.Writer
}

// NewHandler builds an slog handler from opts.
func NewHandler(opts Options) (slog.Handler, error) {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: opts.Level}
	switch opts.Format {
	case FormatText, "":
		return slog.NewTextHandler(w, ho), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, ho), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

// Logger is an immutable field logger. WithField and WithFields return
// copies, so a logger can be shared by concurrent workflows.
type Logger struct {
	handler slog.Handler
	fields  map[string]any
}

// NewLogger creates a logger writing to h. A nil handler discards output.
func NewLogger(h slog.Handler) *Logger {
	if h == nil {
		h = slog.DiscardHandler
	}
	return &Logger{handler: h, fields: map[string]any{}}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return NewLogger(nil)
}

// WithField returns a new logger with an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{handler: l.handler, fields: merged}
}

// Field returns the value of a field.
func (l *Logger) Field(key string) (any, bool) {
	v, ok := l.fields[key]
	return v, ok
}

// Slog returns an *slog.Logger carrying the logger's fields in key order.
func (l *Logger) Slog() *slog.Logger {
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, l.fields[k])
	}
	return slog.New(l.handler).With(args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) { l.Slog().Debug(msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) { l.Slog().Info(msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) { l.Slog().Warn(msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) { l.Slog().Error(msg, args...) }

type loggerKey struct{}

// FromContext extracts the logger from ctx, or a discarding logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return Discard()
}

// ToContext adds the logger to ctx.
func ToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}
