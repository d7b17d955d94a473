package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
	KeyPhase      = "phase"
	KeyMirror     = "mirror"
	KeyURL        = "url"
	KeyVersion    = "version"
)

type contextKey struct{}

// handlerSwitch forwards to whatever handler Init installed last, so
// package-level loggers built before Init pick up the configured output.
// Derived handlers replay their attrs and groups onto the current target.
type handlerSwitch struct {
	target *atomic.Pointer[slog.Handler]
	attrs  []slog.Attr
	groups []string
}

func newHandlerSwitch(h slog.Handler) *handlerSwitch {
	target := &atomic.Pointer[slog.Handler]{}
	target.Store(&h)
	return &handlerSwitch{target: target}
}

func (h *handlerSwitch) set(handler slog.Handler) {
	h.target.Store(&handler)
}

func (h *handlerSwitch) current() slog.Handler {
	handler := *h.target.Load()
	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *handlerSwitch) Enabled(ctx context.Context, level slog.Level) bool {
	return h.current().Enabled(ctx, level)
}

func (h *handlerSwitch) Handle(ctx context.Context, record slog.Record) error {
	return h.current().Handle(ctx, record)
}

func (h *handlerSwitch) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(attrs, "")
}

func (h *handlerSwitch) WithGroup(name string) slog.Handler {
	return h.derive(nil, name)
}

// derive copies h, appending attrs and, when non-empty, a group.
func (h *handlerSwitch) derive(attrs []slog.Attr, group string) *handlerSwitch {
	next := &handlerSwitch{
		target: h.target,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
		groups: append([]string(nil), h.groups...),
	}
	if group != "" {
		next.groups = append(next.groups, group)
	}
	return next
}

var (
	rootHandler   = newHandlerSwitch(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	defaultLogger = slog.New(rootHandler)
)

func init() {
	slog.SetDefault(defaultLogger)
}

// Init initializes the global logger. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr, so stdout stays free for command output)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	rootHandler.set(handler)
	defaultLogger = slog.New(rootHandler)
	slog.SetDefault(defaultLogger)
}

// Discard silences all loggers.
func Discard() {
	rootHandler.set(slog.NewTextHandler(io.Discard, nil))
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// WithInstall returns a child logger carrying the target version and install path.
func WithInstall(logger *slog.Logger, version, installPath string) *slog.Logger {
	return logger.With(
		slog.String(KeyVersion, version),
		slog.String("installPath", installPath),
	)
}

// NewContext returns a new context carrying the given logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from context, falling back to the default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// For returns the context logger tagged with a component name, so records
// keep any install attributes stored by NewContext.
func For(ctx context.Context, component string) *slog.Logger {
	return FromContext(ctx).With(slog.String(KeyComponent, component))
}

func parseLevel(s string) slog.Level {
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
