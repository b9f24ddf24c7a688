package logger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the relay's log sinks.
type Options struct {
	App   string
	Env   string
	Level string // console level, default info
	File  FileOptions
	// RedactKeys extend DefaultRedactKeys. Header names of relayed requests
	// and query parameter names both belong here.
	RedactKeys []string
}

// FileOptions configure the rotated JSON sink. An empty Path disables it.
type FileOptions struct {
	Path       string
	Level      string // default debug
	MaxSizeMB  int    // default 5
	MaxBackups int    // default 3
	MaxAgeDays int    // default 28
}

// DefaultRedactKeys are always masked.
var DefaultRedactKeys = []string{
	"authorization", "proxy-authorization", "cookie", "set-cookie",
	"x-api-key", "api_key", "token", "secret", "password",
}

const redacted = "[REDACTED]"

var closers sync.Map

// New builds the relay logger: a tinted console sink plus an optional
// rotated JSON file, both behind one redaction pass.
func New(o Options) *slog.Logger {
	sinks := []slog.Handler{consoleSink(o.Env, o.Level)}
	var closer func() error
	if o.File.Path != "" {
		h, c := fileSink(o.File)
		sinks = append(sinks, h)
		closer = c
	}

	var h slog.Handler = sinks[0]
	if len(sinks) > 1 {
		h = &fanout{sinks: sinks}
	}
	keys := append(append([]string(nil), DefaultRedactKeys...), o.RedactKeys...)
	l := slog.New(newRedactor(h, keys)).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

func consoleSink(env, level string) slog.Handler {
	format := time.RFC3339
	if env == "dev" {
		format = time.Kitchen
	}
	return tint.NewHandler(os.Stdout, &tint.Options{
		Level:      parseLevel(level, slog.LevelInfo),
		TimeFormat: format,
	})
}

func fileSink(f FileOptions) (slog.Handler, func() error) {
	w := &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    orDefault(f.MaxSizeMB, 5),
		MaxBackups: orDefault(f.MaxBackups, 3),
		MaxAge:     orDefault(f.MaxAgeDays, 28),
		Compress:   true,
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(f.Level, slog.LevelDebug)}), w.Close
}

// Close releases the file sink of a logger created by New.
func Close(logger *slog.Logger) error {
	if c, ok := closers.LoadAndDelete(logger); ok {
		return c.(func() error)()
	}
	return nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func parseLevel(s string, def slog.Level) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return def
	}
	return l
}

// redactor masks attributes named by a key set, including ones nested in
// groups, and string values that carry credentials.
type redactor struct {
	inner slog.Handler
	keys  map[string]struct{}
}

func newRedactor(inner slog.Handler, keys []string) *redactor {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m[k] = struct{}{}
		}
	}
	return &redactor{inner: inner, keys: m}
}

func (h *redactor) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *redactor) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.mask(a))
		return true
	})
	return h.inner.Handle(ctx, nr)
}

func (h *redactor) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(a)
	}
	return &redactor{inner: h.inner.WithAttrs(masked), keys: h.keys}
}

func (h *redactor) WithGroup(name string) slog.Handler {
	return &redactor{inner: h.inner.WithGroup(name), keys: h.keys}
}

func (h *redactor) mask(a slog.Attr) slog.Attr {
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		masked := make([]slog.Attr, len(group))
		for i, g := range group {
			masked[i] = h.mask(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	case slog.KindString:
		if h.leaks(v.String()) {
			return slog.String(a.Key, redacted)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// leaks catches credentials under innocent keys: an auth scheme prefix or a
// redacted name used as a query parameter in a logged URL.
func (h *redactor) leaks(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "bearer ") || strings.HasPrefix(lower, "basic ") {
		return true
	}
	if !strings.ContainsAny(lower, "?&") {
		return false
	}
	for k := range h.keys {
		if strings.Contains(lower, "?"+k+"=") || strings.Contains(lower, "&"+k+"=") {
			return true
		}
	}
	return false
}

// fanout sends each record to every sink enabled for its level. A failing
// sink does not starve the others.
type fanout struct {
	sinks []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if s.Enabled(ctx, r.Level) {
			errs = append(errs, s.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (f *fanout) WithGroup(name string) slog.Handler {
	return f.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (f *fanout) each(fn func(slog.Handler) slog.Handler) *fanout {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = fn(s)
	}
	return &fanout{sinks: sinks}
}
