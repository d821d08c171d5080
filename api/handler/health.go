package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports engine utilisation and degrades status when > 80% of the browsing
// contexts are in use.
func Health(engine EngineStatser, startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := engine.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Engine:  stats,
			Version: version,
		})
	}
}
