package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
)

// logRouter is a [slog.Handler] fanning records out to a set of named
// handlers that can be swapped while the program runs, e.g. when the
// terminal is handed to the user interface and back.
type logRouter struct {
	sync.RWMutex
	handlers map[string]slog.Handler
}

func newLogRouter() *logRouter {
	return &logRouter{
		handlers: make(map[string]slog.Handler),
	}
}

func (r *logRouter) Enabled(ctx context.Context, level slog.Level) bool {
	r.RLock()
	defer r.RUnlock()

	for _, h := range r.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (r *logRouter) Handle(ctx context.Context, rec slog.Record) error {
	r.RLock()
	defer r.RUnlock()

	for _, h := range r.handlers {
		if h.Enabled(ctx, rec.Level) {
			_ = h.Handle(ctx, rec.Clone())
		}
	}

	return nil
}

// WithAttrs returns a detached copy; it does not follow later swaps.
func (r *logRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	r.RLock()
	defer r.RUnlock()

	derived := newLogRouter()
	for name, h := range r.handlers {
		derived.handlers[name] = h.WithAttrs(attrs)
	}

	return derived
}

// WithGroup returns a detached copy; it does not follow later swaps.
func (r *logRouter) WithGroup(name string) slog.Handler {
	r.RLock()
	defer r.RUnlock()

	derived := newLogRouter()
	for handlerName, h := range r.handlers {
		derived.handlers[handlerName] = h.WithGroup(name)
	}

	return derived
}

// Set installs handler under name, replacing any previous one.
func (r *logRouter) Set(name string, handler slog.Handler) {
	r.Lock()
	defer r.Unlock()

	r.handlers[name] = handler
}

// Remove uninstalls the handler under name.
func (r *logRouter) Remove(name string) {
	r.Lock()
	defer r.Unlock()

	delete(r.handlers, name)
}

// crlfWriter translates line feeds for a terminal in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}

	return len(p), nil
}
