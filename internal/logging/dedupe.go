package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Dedupe wraps logger so a record identical to the previous one (same level, message
// and attributes) is dropped. Loggers derived with With share the same memory.
func Dedupe(logger *slog.Logger) *slog.Logger {
	return slog.New(&dedupeHandler{inner: logger.Handler(), last: &lastRecord{}})
}

type lastRecord struct {
	mu  sync.Mutex
	key string
}

type dedupeHandler struct {
	inner slog.Handler
	last  *lastRecord
	scope string
}

func (h *dedupeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *dedupeHandler) Handle(ctx context.Context, r slog.Record) error {
	key := h.recordKey(r)
	h.last.mu.Lock()
	if key == h.last.key {
		h.last.mu.Unlock()
		return nil
	}
	h.last.key = key
	h.last.mu.Unlock()
	return h.inner.Handle(ctx, r)
}

func (h *dedupeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.scope)
	for _, a := range attrs {
		fmt.Fprintf(&b, "|%s=%s", a.Key, a.Value)
	}
	return &dedupeHandler{inner: h.inner.WithAttrs(attrs), last: h.last, scope: b.String()}
}

func (h *dedupeHandler) WithGroup(name string) slog.Handler {
	return &dedupeHandler{inner: h.inner.WithGroup(name), last: h.last, scope: h.scope + "|" + name + "."}
}

func (h *dedupeHandler) recordKey(r slog.Record) string {
	var b strings.Builder
	b.WriteString(h.scope)
	b.WriteString("|")
	b.WriteString(r.Level.String())
	b.WriteString("|")
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "|%s=%s", a.Key, a.Value)
		return true
	})
	return b.String()
}
