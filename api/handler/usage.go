package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/quota"
)

// Usage returns a handler for GET /api/v1/usage.
func Usage(qs *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := qs.Stats(c.Request.Context(), middleware.IdentityOf(c))
		if err != nil {
			respondError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// ListHistory returns a handler for GET /api/v1/history.
func ListHistory(hs *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := hs.List(c.Request.Context(), middleware.IdentityOf(c))
		if err != nil {
			respondError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, models.HistoryResponse{Items: items})
	}
}

// ClearHistory returns a handler for DELETE /api/v1/history.
func ClearHistory(hs *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := hs.Clear(c.Request.Context(), middleware.IdentityOf(c)); err != nil {
			respondError(c, err, "")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
