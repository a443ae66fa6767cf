// Package logger builds the process logger: a tinted console handler plus an
// optional rotated JSON file handler, with credential-bearing attributes
// masked before they reach either sink.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// credentialKeys are attribute names whose values never reach a log line.
var credentialKeys = map[string]struct{}{
	"password": {},
	"dsn":      {},
	"token":    {},
	"secret":   {},
	"api_key":  {},
}

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // level for console output (default: info)
	FileLevel    string // level for file output (default: debug)
	File         string // rotated JSON log file; empty disables file output
	App          string
}

var closers sync.Map

// New creates the configured slog.Logger. When a file is configured, Close
// must be called at shutdown to release it.
func New(o Options) *slog.Logger {
	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}

	sinks := []slog.Handler{tint.NewHandler(os.Stdout, &tint.Options{
		Level:      levelFromString(o.ConsoleLevel, slog.LevelInfo),
		TimeFormat: timeFormat,
	})}

	var closer func() error
	if o.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = rotated.Close
		sinks = append(sinks, slog.NewJSONHandler(rotated, &slog.HandlerOptions{
			Level: levelFromString(o.FileLevel, slog.LevelDebug),
		}))
	}

	var h slog.Handler = tee(sinks)
	if len(sinks) == 1 {
		h = sinks[0]
	}

	l := slog.New(&redactor{inner: h}).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

// Close releases the file sink behind a logger built by New. Safe to call on
// a console-only logger and safe to call twice.
func Close(l *slog.Logger) error {
	if c, ok := closers.LoadAndDelete(l); ok {
		return c.(func() error)()
	}
	return nil
}

func levelFromString(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}

// redactor masks credential-bearing attributes before the wrapped handler
// sees them: any attribute with a credential key, and any string value shaped
// like a DSN or token logged under an innocent key.
type redactor struct {
	inner slog.Handler
}

func (h *redactor) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *redactor) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(mask(a))
		return true
	})
	return h.inner.Handle(ctx, nr)
}

func (h *redactor) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = mask(a)
	}
	return &redactor{inner: h.inner.WithAttrs(masked)}
}

func (h *redactor) WithGroup(name string) slog.Handler {
	return &redactor{inner: h.inner.WithGroup(name)}
}

func mask(a slog.Attr) slog.Attr {
	if _, ok := credentialKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	if s, ok := a.Value.Any().(string); ok && looksLikeCredential(s) {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// looksLikeCredential catches secrets logged under a harmless key. DSNs embed
// credentials before the host part.
func looksLikeCredential(s string) bool {
	if len(s) <= 12 {
		return false
	}
	l := strings.ToLower(s)
	return strings.Contains(l, "token") || strings.Contains(s, "@tcp(") || strings.Contains(l, "password=")
}

// tee fans each record out to every sink whose level accepts it.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
