package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pulse/internal/models"
)

// ReadinessChecker interface for checking service readiness
type ReadinessChecker interface {
	Check() (map[string]models.HealthCheck, bool, error)
}

// HealthHandlers contains health check handlers
type HealthHandlers struct {
	version   string
	startTime time.Time
}

// NewHealthHandlers creates new health handlers
func NewHealthHandlers(version string, startTime time.Time) *HealthHandlers {
	return &HealthHandlers{
		version:   version,
		startTime: startTime,
	}
}

// HealthCheck returns a handler for the health check endpoint
func (h *HealthHandlers) HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		uptime := time.Since(h.startTime).Seconds()

		response := models.HealthResponse{
			Status:  "healthy",
			Version: h.version,
			Uptime:  int64(uptime),
		}

		c.JSON(http.StatusOK, response)
	}
}

// Readiness returns a handler for the readiness check endpoint
func (h *HealthHandlers) Readiness(checker ReadinessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, ready, err := checker.Check()

		if err != nil {
			response := models.ReadinessResponse{
				Ready: false,
				Checks: map[string]models.HealthCheck{
					"error": {
						Status:  "unhealthy",
						Message: "Failed to check readiness",
						Error:   err.Error(),
					},
				},
			}
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}

		response := models.ReadinessResponse{
			Ready:  ready,
			Checks: checks,
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, response)
	}
}
