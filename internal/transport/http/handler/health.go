package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookplatform/internal/rag"
	"bookplatform/internal/vectorstore"
)

// Check reports whether one backing service is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	name      string
	env       string
	startedAt time.Time
	checks    map[string]Check
	store     vectorstore.Store
	ingestor  *rag.Ingestor
	assistant *rag.Assistant
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type HealthOptions struct {
	Name      string
	Env       string
	StartedAt time.Time
	Checks    map[string]Check
	Store     vectorstore.Store
	Ingestor  *rag.Ingestor
	Assistant *rag.Assistant
}

func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{
		name:      opts.Name,
		env:       opts.Env,
		startedAt: opts.StartedAt,
		checks:    opts.Checks,
		store:     opts.Store,
		ingestor:  opts.Ingestor,
		assistant: opts.Assistant,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	deps := make(map[string]dependencyStatus, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = dependencyStatus{OK: false, Message: err.Error()}
			allOK = false
			continue
		}
		deps[name] = dependencyStatus{OK: true}
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.name,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": deps,
		"rag":          h.ragStatus(ctx),
	})
}

func (h *HealthHandler) ragStatus(ctx context.Context) gin.H {
	status := gin.H{}
	if h.assistant != nil {
		status["assistant_enabled"] = h.assistant.Enabled()
		status["failure_policy"] = h.assistant.Policy()
	}
	if h.store != nil {
		if n, err := h.store.Len(ctx); err != nil {
			status["vector_store_error"] = err.Error()
		} else {
			status["indexed_chunks"] = n
		}
	}
	if h.ingestor != nil {
		status["ingestion"] = h.ingestor.Status()
	}
	return status
}
