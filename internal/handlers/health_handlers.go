package handlers

import (
	"net/http"
	"runtime"
	"time"

	"gstrecon/internal/caching"
	"gstrecon/internal/repositories"
	"gstrecon/internal/services"

	"github.com/labstack/echo/v4"
)

// JobLister reports the background jobs registered with the scheduler.
type JobLister interface {
	JobNames() []string
}

// HealthHandlers handles health check and monitoring endpoints.
type HealthHandlers struct {
	db      repositories.DB
	cache   caching.CacheService
	archive services.ReportArchiveService
	jobs    JobLister
}

func NewHealthHandlers(db repositories.DB, cache caching.CacheService, archive services.ReportArchiveService, jobs JobLister) *HealthHandlers {
	return &HealthHandlers{db: db, cache: cache, archive: archive, jobs: jobs}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	Services       map[string]string `json:"services"`
	BackgroundJobs []string          `json:"background_jobs,omitempty"`
	Goroutines     int               `json:"goroutines"`
}

// HealthCheck performs connectivity checks against every backing service.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	health := &HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Services:   make(map[string]string),
		Goroutines: runtime.NumGoroutine(),
	}

	if _, err := h.db.Exec(ctx, "SELECT 1"); err != nil {
		health.Services["database"] = "unhealthy"
		health.Status = "degraded"
	} else {
		health.Services["database"] = "healthy"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			health.Services["redis"] = "unhealthy"
			health.Status = "degraded"
		} else {
			health.Services["redis"] = "healthy"
		}
	}

	if h.archive != nil {
		if err := h.archive.Ping(ctx); err != nil {
			health.Services["storage"] = "unhealthy"
			health.Status = "degraded"
		} else {
			health.Services["storage"] = "healthy"
		}
	}

	if h.jobs != nil {
		health.BackgroundJobs = h.jobs.JobNames()
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, health)
}

// ReadinessCheck reports whether the service can take traffic. Only the
// database is critical; cache and storage degrade gracefully.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	if _, err := h.db.Exec(c.Request().Context(), "SELECT 1"); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Database unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// LivenessCheck is the basic liveness probe.
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
