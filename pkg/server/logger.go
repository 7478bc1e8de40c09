package server

import (
	"context"
	"log/slog"

	"github.com/mikeboe/deep-researcher/pkg/tasks"
)

// TaskLogHandler is a slog.Handler that captures records into a task's log
// list and forwards them to the process handler.
type TaskLogHandler struct {
	Registry *tasks.Registry
	TaskID   string

	next   slog.Handler
	attrs  []slog.Attr
	groups []string
}

func NewTaskLogHandler(reg *tasks.Registry, taskID string, next slog.Handler) *TaskLogHandler {
	return &TaskLogHandler{
		Registry: reg,
		TaskID:   taskID,
		next:     next,
	}
}

func (h *TaskLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next == nil {
		return level >= slog.LevelInfo
	}
	return h.next.Enabled(ctx, level)
}

func (h *TaskLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	entry := tasks.LogEntry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if len(attrs) > 0 {
		entry.Attrs = attrs
	}
	h.Registry.AppendLog(h.TaskID, entry)

	if h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *TaskLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	// Attribute keys are recorded with the groups open at this point.
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		c.attrs = append(c.attrs, a)
	}
	if h.next != nil {
		c.next = h.next.WithAttrs(attrs)
	}
	return c
}

func (h *TaskLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	if h.next != nil {
		c.next = h.next.WithGroup(name)
	}
	return c
}

func (h *TaskLogHandler) clone() *TaskLogHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	c.groups = append([]string(nil), h.groups...)
	return &c
}

func (h *TaskLogHandler) qualify(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}
