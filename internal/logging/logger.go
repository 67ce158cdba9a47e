// Package logging provides the structured logger used across toolflow.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"
)

// Logger wraps slog.Logger with secret redaction and workflow helpers.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
}

// Config configures the logger.
type Config struct {
	Level     string
	Format    string // auto, text, json
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns the default logger configuration. Logs go to stderr
// so stdout stays free for rendered reports.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "auto",
		Output: os.Stderr,
	}
}

// New creates a new logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := ParseLevel(cfg.Level)
	sanitizer := NewSanitizer()
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, opts)
	case "text":
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		if isTerminal(cfg.Output) {
			handler = NewPrettyHandler(cfg.Output, level)
		} else {
			handler = slog.NewJSONHandler(cfg.Output, opts)
		}
	}

	return &Logger{
		Logger:    slog.New(NewSanitizingHandler(handler, sanitizer)),
		sanitizer: sanitizer,
	}
}

// NewNop creates a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		sanitizer: NewSanitizer(),
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func (l *Logger) derive(logger *slog.Logger) *Logger {
	return &Logger{Logger: logger, sanitizer: l.sanitizer}
}

// WithContext attaches the trace and span ids of the active span, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.derive(l.Logger.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String()))
}

// WithRun returns a logger scoped to one workflow run.
func (l *Logger) WithRun(runID string) *Logger {
	return l.derive(l.Logger.With("run_id", runID))
}

// WithWorkflow returns a logger scoped to a workflow name.
func (l *Logger) WithWorkflow(name string) *Logger {
	return l.derive(l.Logger.With("workflow", name))
}

// WithTool returns a logger scoped to one tool.
func (l *Logger) WithTool(tool string) *Logger {
	return l.derive(l.Logger.With("tool", tool))
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return l.derive(l.Logger.With(args...))
}

// Sanitizer returns the sanitizer used by this logger.
func (l *Logger) Sanitizer() *Sanitizer {
	return l.sanitizer
}
