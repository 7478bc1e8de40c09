package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/metrics"
	"github.com/mikeboe/deep-researcher/pkg/research"
	"github.com/mikeboe/deep-researcher/pkg/tasks"
)

// ErrEmptyTopic is returned when a task is submitted without a topic.
var ErrEmptyTopic = errors.New("topic must not be empty")

// Runner executes one research run.
type Runner interface {
	Run(ctx context.Context, topic string) (string, error)
}

// EngineFactory builds the Runner for a task.
type EngineFactory func(ctx context.Context, cfg config.Configuration, sink research.ProgressSink, logger *slog.Logger) (Runner, error)

type Service struct {
	Registry  *tasks.Registry
	Metrics   *metrics.Collector
	OutputDir string
	NewEngine EngineFactory

	// LogHandler receives every task log record after it is captured.
	LogHandler slog.Handler

	ctx      context.Context
	mu       sync.RWMutex
	defaults config.Overrides
	wg       sync.WaitGroup
}

// NewService runs tasks under ctx; cancelling it aborts in-flight research.
func NewService(ctx context.Context, reg *tasks.Registry, m *metrics.Collector, outputDir string) *Service {
	s := &Service{
		Registry:   reg,
		Metrics:    m,
		OutputDir:  outputDir,
		LogHandler: slog.Default().Handler(),
		ctx:        ctx,
	}
	s.NewEngine = s.defaultEngine
	return s
}

func (s *Service) defaultEngine(ctx context.Context, cfg config.Configuration, sink research.ProgressSink, logger *slog.Logger) (Runner, error) {
	engine, err := research.NewEngine(ctx, cfg, sink)
	if err != nil {
		return nil, err
	}
	engine.Logger = logger
	engine.Metrics = s.Metrics
	if engine.Validator != nil {
		engine.Validator.Logger = logger
	}
	return engine, nil
}

type CreateTaskRequest struct {
	Topic  string           `json:"topic"`
	Config config.Overrides `json:"config"`
}

// CreateTask resolves the run configuration, registers the task and starts it
// in the background. Configuration errors are returned before anything runs.
func (s *Service) CreateTask(req CreateTaskRequest) (tasks.Task, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return tasks.Task{}, ErrEmptyTopic
	}

	cfg, err := config.Resolve(s.Defaults().Merge(req.Config))
	if err != nil {
		return tasks.Task{}, fmt.Errorf("invalid configuration: %w", err)
	}

	task := s.Registry.Create(topic)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(task.ID, topic, cfg)
	}()

	return task, nil
}

// Defaults returns the server-wide overrides applied under every request.
func (s *Service) Defaults() config.Overrides {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// UpdateDefaults layers o over the current defaults and returns the resolved
// configuration. Invalid updates are rejected without changing anything.
func (s *Service) UpdateDefaults(o config.Overrides) (config.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.defaults.Merge(o)
	cfg, err := config.Resolve(merged)
	if err != nil {
		return config.Configuration{}, err
	}
	s.defaults = merged
	return cfg, nil
}

// EffectiveConfig resolves the current defaults.
func (s *Service) EffectiveConfig() (config.Configuration, error) {
	return config.Resolve(s.Defaults())
}

// Wait blocks until every started worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runWorker(taskID, topic string, cfg config.Configuration) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	logger := slog.New(NewTaskLogHandler(s.Registry, taskID, s.LogHandler)).With("task_id", taskID)

	if err := s.Registry.Start(taskID, cfg); err != nil {
		logger.Error("Task vanished before start", "error", err)
		return
	}

	engine, err := s.NewEngine(ctx, cfg, s.Registry.Sink(taskID), logger)
	if err != nil {
		s.failTask(logger, taskID, fmt.Errorf("failed to init engine: %w", err))
		return
	}

	report, err := engine.Run(ctx, topic)
	if err != nil {
		s.failTask(logger, taskID, fmt.Errorf("research failed: %w", err))
		return
	}

	outputFile, err := s.writeReport(taskID, report)
	if err != nil {
		logger.Error("Failed to save report", "error", err)
	}

	if err := s.Registry.Complete(taskID, report, outputFile); err != nil {
		logger.Error("Failed to complete task", "error", err)
		return
	}
	logger.Info("Task completed", "output_file", outputFile)
}

func (s *Service) failTask(logger *slog.Logger, taskID string, cause error) {
	logger.Error(cause.Error())
	if err := s.Registry.Fail(taskID, cause); err != nil {
		logger.Error("Failed to mark task failed", "error", err)
	}
}

// writeReport saves report as research_output_<unix>.md under OutputDir and
// returns the path, or "" when no directory is configured.
func (s *Service) writeReport(taskID, report string) (string, error) {
	if s.OutputDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	stamp := time.Now().Unix()
	names := []string{
		fmt.Sprintf("research_output_%d.md", stamp),
		fmt.Sprintf("research_output_%d_%s.md", stamp, taskID),
	}
	var lastErr error
	for _, name := range names {
		path := filepath.Join(s.OutputDir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := f.WriteString(report); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to write report: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("failed to create report file: %w", lastErr)
}
