package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// SanitizingHandler redacts secrets from messages and attributes before
// passing records on.
type SanitizingHandler struct {
	handler   slog.Handler
	sanitizer *Sanitizer
}

// NewSanitizingHandler wraps handler.
func NewSanitizingHandler(handler slog.Handler, sanitizer *Sanitizer) *SanitizingHandler {
	return &SanitizingHandler{handler: handler, sanitizer: sanitizer}
}

// Enabled reports whether the wrapped handler handles the level.
func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record and forwards it.
func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.sanitizer.Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs returns a handler with sanitized attrs.
func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.sanitizeAttr(a)
	}
	return &SanitizingHandler{handler: h.handler.WithAttrs(clean), sanitizer: h.sanitizer}
}

// WithGroup returns a handler with a group.
func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{handler: h.handler.WithGroup(name), sanitizer: h.sanitizer}
}

func (h *SanitizingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	if h.sanitizer.IsSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, h.sanitizer.redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.sanitizer.Sanitize(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			clean[i] = h.sanitizeAttr(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindAny:
		if m, ok := a.Value.Any().(map[string]any); ok {
			return slog.Any(a.Key, h.sanitizer.SanitizeMap(m))
		}
		return a
	default:
		return a
	}
}

// PrettyHandler writes compact colorized lines for interactive terminals.
// The run and tool attributes are promoted next to the level so concurrent
// tools stay readable.
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewPrettyHandler creates a new pretty handler.
func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether the level is at or above the handler's level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Handle formats and writes the record.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var scope string
	var b strings.Builder

	collect := func(a slog.Attr) {
		if a.Key == "tool" && len(h.groups) == 0 {
			scope = "[" + a.Value.String() + "] "
			return
		}
		h.writeAttr(&b, a, h.groups)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.w, "%s %s %s%s%s\n",
		r.Time.Format("15:04:05"), formatLevel(r.Level), scope, r.Message, b.String())
	return err
}

// WithAttrs returns a handler with attrs.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup returns a handler with a group.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func formatLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed + "ERR" + colorReset
	case level >= slog.LevelWarn:
		return colorYellow + "WRN" + colorReset
	case level >= slog.LevelInfo:
		return colorBlue + "INF" + colorReset
	default:
		return colorGray + "DBG" + colorReset
	}
}

func (h *PrettyHandler) writeAttr(b *strings.Builder, a slog.Attr, groups []string) {
	if a.Value.Kind() == slog.KindGroup {
		nested := append(append([]string{}, groups...), a.Key)
		for _, attr := range a.Value.Group() {
			h.writeAttr(b, attr, nested)
		}
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	fmt.Fprintf(b, " %s%s%s=%v", colorCyan, key, colorReset, a.Value.Any())
}
