package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/api/handler"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/quota"
)

// Services bundles what the handlers depend on.
type Services struct {
	Engine     handler.EngineStatser
	Parser     *handler.Parser
	Batches    *handler.Batches
	Downloader handler.MediaOpener
	Quota      *quota.Service
	History    *history.Service
	StartTime  time.Time
	Version    string
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit → Identity
//
// Health is reachable without an API key.
func NewRouter(cfg *config.Config, svc *Services) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health stays outside auth.
	v1.GET("/health", handler.Health(svc.Engine, svc.StartTime, svc.Version))

	// Everything else: auth, rate limit, identity.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))
	protected.Use(middleware.Identity())

	// Parse
	protected.POST("/parse", handler.Parse(svc.Parser))
	protected.POST("/parse/stream", handler.ParseStream(svc.Parser))

	// Download proxy
	download := handler.Download(svc.Downloader, cfg.Download.Timeout)
	protected.POST("/download", download)
	protected.GET("/download", download)

	// Usage and history
	protected.GET("/usage", handler.Usage(svc.Quota))
	protected.GET("/history", handler.ListHistory(svc.History))
	protected.DELETE("/history", handler.ClearHistory(svc.History))

	// Batch
	protected.POST("/batch", handler.PostBatch(svc.Batches))
	protected.GET("/batch/:id", handler.GetBatch(svc.Batches))

	return r
}
