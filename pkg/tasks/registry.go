// Package tasks keeps in-memory records of background research runs and fans
// their progress out to live subscribers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/research"
)

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = errors.New("task not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the task has stopped.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// LogEntry is one slog record captured for a task.
type LogEntry struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"metadata,omitempty"`
}

type Task struct {
	ID          string                `json:"id"`
	Topic       string                `json:"topic"`
	Status      Status                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Progress    string                `json:"progress"`
	ActivityLog []research.Event      `json:"activity_log"`
	Logs        []LogEntry            `json:"-"`
	Result      string                `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	OutputFile  string                `json:"output_file,omitempty"`
	Config      *config.Configuration `json:"config,omitempty"`
}

func (t *Task) snapshot() Task {
	c := *t
	c.ActivityLog = append([]research.Event(nil), t.ActivityLog...)
	c.Logs = append([]LogEntry(nil), t.Logs...)
	if t.Config != nil {
		cfg := *t.Config
		cfg.SearchAPIs = append([]string(nil), t.Config.SearchAPIs...)
		c.Config = &cfg
	}
	return c
}

// Registry is safe for concurrent use. Each task has a single producer (its
// worker) and any number of readers.
type Registry struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	subscribers map[string]map[chan research.Event]struct{}
	maxTasks    int

	now func() time.Time
}

// NewRegistry keeps at most maxTasks records, evicting the oldest finished
// ones first. maxTasks <= 0 means unbounded.
func NewRegistry(maxTasks int) *Registry {
	return &Registry{
		tasks:       make(map[string]*Task),
		subscribers: make(map[string]map[chan research.Event]struct{}),
		maxTasks:    maxTasks,
		now:         time.Now,
	}
}

// Create registers a pending task.
func (r *Registry) Create(topic string) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &Task{
		ID:          uuid.NewString(),
		Topic:       topic,
		Status:      StatusPending,
		CreatedAt:   r.now(),
		Progress:    "Queued",
		ActivityLog: []research.Event{},
	}
	r.tasks[t.ID] = t
	r.evictLocked()
	return t.snapshot()
}

func (r *Registry) evictLocked() {
	if r.maxTasks <= 0 || len(r.tasks) <= r.maxTasks {
		return
	}
	var finished []*Task
	for _, t := range r.tasks {
		if t.Status.Terminal() {
			finished = append(finished, t)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CreatedAt.Before(finished[j].CreatedAt) })
	for _, t := range finished {
		if len(r.tasks) <= r.maxTasks {
			return
		}
		delete(r.tasks, t.ID)
	}
}

// Get returns a copy of the task.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.snapshot(), nil
}

// List returns copies of every task, newest first.
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Start marks the task running under the resolved configuration.
func (r *Registry) Start(id string, cfg config.Configuration) error {
	return r.update(id, func(t *Task) {
		now := r.now()
		t.Status = StatusRunning
		t.StartedAt = &now
		t.Progress = "Starting research"
		t.Config = &cfg
	})
}

// Record appends ev to the activity log and forwards it to subscribers.
func (r *Registry) Record(id string, ev research.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.ActivityLog = append(t.ActivityLog, ev)
	t.Progress = ev.Message

	// Sends happen under the lock so a closing subscriber never sees a send.
	for ch := range r.subscribers[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Registry) AppendLog(id string, entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Logs = append(t.Logs, entry)
	}
}

// Logs returns a copy of the task's captured log records.
func (r *Registry) Logs(id string) ([]LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]LogEntry{}, t.Logs...), nil
}

func (r *Registry) Complete(id, result, outputFile string) error {
	return r.finish(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Result = result
		t.OutputFile = outputFile
		t.Progress = "Research complete"
	})
}

func (r *Registry) Fail(id string, cause error) error {
	return r.finish(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = cause.Error()
		t.Progress = "Research failed"
	})
}

func (r *Registry) finish(id string, fn func(*Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(t)
	now := r.now()
	t.CompletedAt = &now

	for ch := range r.subscribers[id] {
		close(ch)
	}
	delete(r.subscribers, id)
	return nil
}

func (r *Registry) update(id string, fn func(*Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(t)
	return nil
}

// Sink routes engine progress for task id into the registry.
func (r *Registry) Sink(id string) research.ProgressSink {
	return research.SinkFunc(func(ev research.Event) {
		r.Record(id, ev)
	})
}

// Subscribe returns the task as it is now plus a channel carrying every later
// event. The channel is closed when the task finishes or ctx is done. Slow
// readers miss events rather than stall the worker.
func (r *Registry) Subscribe(ctx context.Context, id string) (Task, <-chan research.Event, error) {
	ch := make(chan research.Event, 32)

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return Task{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snap := t.snapshot()
	if t.Status.Terminal() {
		r.mu.Unlock()
		close(ch)
		return snap, ch, nil
	}
	if r.subscribers[id] == nil {
		r.subscribers[id] = make(map[chan research.Event]struct{})
	}
	r.subscribers[id][ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subscribers[id]
		if _, live := subs[ch]; !live {
			return
		}
		delete(subs, ch)
		if len(subs) == 0 {
			delete(r.subscribers, id)
		}
		close(ch)
	}()

	return snap, ch, nil
}
