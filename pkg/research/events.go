package research

import (
	"log/slog"
	"time"
)

// Event is a progress notification emitted on every state transition.
type Event struct {
	Time    time.Time      `json:"time"`
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Detail  string         `json:"detail,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ProgressSink receives events from the engine. Implementations must return
// promptly; the engine calls them inline.
type ProgressSink interface {
	Progress(ev Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Progress(Event) {}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(ev Event)

func (f SinkFunc) Progress(ev Event) { f(ev) }

// MultiSink fans out to every sink in order.
type MultiSink []ProgressSink

func (m MultiSink) Progress(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Progress(ev)
		}
	}
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Progress(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"step", ev.Step}
	if ev.Detail != "" {
		args = append(args, "detail", ev.Detail)
	}
	for k, v := range ev.Payload {
		args = append(args, k, v)
	}
	logger.Info(ev.Message, args...)
}
