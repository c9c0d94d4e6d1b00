package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/payops/apsgw/infra/config"
	"github.com/payops/apsgw/infra/response"
)

// Pinger checks a backing store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store     Pinger
	cfg       *config.APSConfig
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Uptime      string          `json:"uptime"`
	Environment string          `json:"environment"`
	Database    *DatabaseHealth `json:"database"`
	System      *SystemHealth   `json:"system"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Alloc      uint64 `json:"alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, cfg *config.APSConfig) *HealthHandler {
	return &HealthHandler{
		store:     store,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// CheckHealth performs the health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Status:      "healthy",
		Version:     config.PluginVersion,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: h.cfg.Environment,
		Database:    h.checkDatabaseHealth(ctx),
		System:      checkSystemHealth(),
	}

	statusCode := http.StatusOK
	if !health.Database.Connected {
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: "Health check",
		Data:    health,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		return &DatabaseHealth{
			Status:       "unhealthy",
			Connected:    false,
			ResponseTime: time.Since(start).String(),
			Error:        err.Error(),
		}
	}
	return &DatabaseHealth{
		Status:       "healthy",
		Connected:    true,
		ResponseTime: time.Since(start).String(),
	}
}

func checkSystemHealth() *SystemHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &SystemHealth{
		Alloc:      m.Alloc,
		Sys:        m.Sys,
		GCRuns:     m.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}
