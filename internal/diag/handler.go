package diag

import (
	"context"
	"log/slog"
)

// Handler is an slog.Handler that records every entry in a Buffer, passes
// it to emit and then to the next handler.
type Handler struct {
	buffer *Buffer
	emit   func(Entry)
	next   slog.Handler
	attrs  []slog.Attr
	group  string
}

// NewHandler wraps next. emit may be nil.
func NewHandler(buffer *Buffer, next slog.Handler, emit func(Entry)) *Handler {
	if emit == nil {
		emit = func(Entry) {}
	}
	return &Handler{
		buffer: buffer,
		emit:   emit,
		next:   next,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		fields[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fields[key] = a.Value.Any()
		return true
	})

	entry := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Fields:  fields,
	}
	h.buffer.Add(entry)
	h.emit(entry)

	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &Handler{
		buffer: h.buffer,
		emit:   h.emit,
		next:   h.next.WithAttrs(attrs),
		attrs:  merged,
		group:  h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{
		buffer: h.buffer,
		emit:   h.emit,
		next:   h.next.WithGroup(name),
		attrs:  h.attrs,
		group:  group,
	}
}
