package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	natsclient "renovation-service/internal/nats"
	rediscache "renovation-service/internal/redis"
)

var startTime = time.Now()

// HealthHandler handles health and readiness endpoints
type HealthHandler struct {
	db    *gorm.DB
	cache *rediscache.Client
	nats  *natsclient.Client
}

// NewHealthHandler creates a new health handler. cache and nats may be nil.
func NewHealthHandler(db *gorm.DB, cache *rediscache.Client, nats *natsclient.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, nats: nats}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check represents a single dependency check result
type Check struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemInfo represents system runtime information
type SystemInfo struct {
	Goroutines  int    `json:"goroutines"`
	MemoryAlloc uint64 `json:"memory_alloc_mb"`
	MemorySys   uint64 `json:"memory_sys_mb"`
	NumCPU      int    `json:"num_cpu"`
	GoVersion   string `json:"go_version"`
}

// Health reports liveness; add ?detailed=true for dependency checks
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Service:   "renovation-service",
		Version:   "1.0.0",
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if c.Query("detailed") == "true" {
		response.Checks = h.performChecks(c.Request.Context())
		response.System = getSystemInfo()
	}

	c.JSON(http.StatusOK, response)
}

// Ready reports readiness; the database is the only hard dependency
func (h *HealthHandler) Ready(c *gin.Context) {
	response := HealthResponse{
		Service:   "renovation-service",
		Version:   "1.0.0",
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    h.performChecks(c.Request.Context()),
	}

	if response.Checks["database"].Status == "healthy" {
		response.Status = "ready"
		c.JSON(http.StatusOK, response)
		return
	}
	response.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, response)
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]Check {
	checks := map[string]Check{
		"database": h.checkDatabase(),
	}
	if h.cache != nil {
		checks["redis"] = h.checkRedis(ctx)
	}
	if h.nats != nil {
		checks["nats"] = h.checkNATS()
	}
	return checks
}

func (h *HealthHandler) checkDatabase() Check {
	sqlDB, err := h.db.DB()
	if err != nil {
		return Check{Status: "unhealthy", Message: "Failed to get database instance"}
	}
	if err := sqlDB.Ping(); err != nil {
		return Check{Status: "unhealthy", Message: "Database ping failed"}
	}

	stats := sqlDB.Stats()
	return Check{
		Status:  "healthy",
		Message: "Database connected",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"max_open":         stats.MaxOpenConnections,
		},
	}
}

func (h *HealthHandler) checkRedis(ctx context.Context) Check {
	if err := h.cache.Ping(ctx); err != nil {
		return Check{Status: "unhealthy", Message: "Redis ping failed"}
	}
	return Check{Status: "healthy", Message: "Redis connected"}
}

func (h *HealthHandler) checkNATS() Check {
	if !h.nats.Connected() {
		return Check{Status: "unhealthy", Message: "NATS disconnected"}
	}
	return Check{Status: "healthy", Message: "NATS connected"}
}

func getSystemInfo() *SystemInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &SystemInfo{
		Goroutines:  runtime.NumGoroutine(),
		MemoryAlloc: mem.Alloc / 1024 / 1024,
		MemorySys:   mem.Sys / 1024 / 1024,
		NumCPU:      runtime.NumCPU(),
		GoVersion:   runtime.Version(),
	}
}
