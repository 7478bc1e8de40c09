package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/search"
	"github.com/mikeboe/deep-researcher/pkg/tasks"
)

// FallbackModels is served by /api/models when Ollama cannot be reached.
var FallbackModels = []string{"llama3.2", "llama3.1:8b", "mistral", "phi"}

type Handler struct {
	Service *Service
	Metrics http.Handler
	Client  *http.Client
}

// NewHandler wires the task API. metricsHandler may be nil.
func NewHandler(s *Service, metricsHandler http.Handler) *Handler {
	return &Handler{
		Service: s,
		Metrics: metricsHandler,
		Client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api")
	{
		api.POST("/research", h.createTask)
		api.GET("/research", h.listTasks)
		api.GET("/research/:id", h.getTask)
		api.GET("/research/:id/logs", h.getTaskLogs)
		api.GET("/research/:id/events", h.streamTaskEvents)

		api.GET("/config", h.getConfig)
		api.POST("/config", h.updateConfig)
		api.GET("/search-providers", h.searchProviders)
		api.GET("/models", h.models)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Format(time.RFC3339)})
}

func (h *Handler) createTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.Service.CreateTask(req)
	if err != nil {
		// Every CreateTask error is a problem with the request itself.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task_id": task.ID, "task": task})
}

func (h *Handler) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Registry.List())
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.Service.Registry.Get(c.Param("id"))
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) getTaskLogs(c *gin.Context) {
	logs, err := h.Service.Registry.Logs(c.Param("id"))
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// streamTaskEvents replays the activity so far and then follows the task
// until it finishes or the client goes away.
func (h *Handler) streamTaskEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	snap, events, err := h.Service.Registry.Subscribe(ctx, id)
	if err != nil {
		notFoundOr500(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for _, ev := range snap.ActivityLog {
		writeSSE(c, "activity", ev)
	}

	for ev := range events {
		writeSSE(c, "activity", ev)
	}

	if ctx.Err() != nil {
		return
	}
	final, err := h.Service.Registry.Get(id)
	if err != nil {
		return
	}
	writeSSE(c, "done", gin.H{"status": final.Status, "error": final.Error, "output_file": final.OutputFile})
}

func writeSSE(c *gin.Context, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}

func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.Service.EffectiveConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) updateConfig(c *gin.Context) {
	var o config.Overrides
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.Service.UpdateDefaults(o)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "config": cfg})
}

func (h *Handler) searchProviders(c *gin.Context) {
	cfg, err := h.Service.EffectiveConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"providers": search.Available(cfg),
		"current":   cfg.SearchAPI,
	})
}

func (h *Handler) models(c *gin.Context) {
	cfg, err := h.Service.EffectiveConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	names, err := h.ollamaModels(c, cfg.OllamaBaseURL)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"models": FallbackModels, "fallback": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": names})
}

func (h *Handler) ollamaModels(c *gin.Context, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode ollama tags: %w", err)
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func notFoundOr500(c *gin.Context, err error) {
	if errors.Is(err, tasks.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
