package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/api/handler"
	"github.com/use-agent/webexporter/api/middleware"
	"github.com/use-agent/webexporter/config"
	"github.com/use-agent/webexporter/logger"
	"github.com/use-agent/webexporter/sites"
)

// Deps are the components the API drives. Tabs is nil when no browser
// runs; the tab routes are then not registered.
type Deps struct {
	Recorder handler.Recorder
	Tabs     handler.Tabs
	Spiders  handler.Spiders
	Export   handler.ExportQueue
	Logs     *logger.Hub
	Sites    *sites.Catalog
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work. ctx bounds
// the rate limiter's background eviction.
func NewRouter(ctx context.Context, d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Recorder, d.Tabs, d.Spiders, d.Sites, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.GET("/sites", handler.ListSites(d.Sites))

	// Recording
	protected.GET("/recording", handler.RecordingStatus(d.Recorder))
	protected.POST("/recording/start", handler.StartRecording(d.Recorder))
	protected.POST("/recording/stop", handler.StopRecording(d.Recorder))

	// Extract a supplied body without a browser
	protected.POST("/extract", handler.Extract(d.Recorder))

	// Tabs
	if d.Tabs != nil {
		protected.GET("/tabs", handler.ListTabs(d.Tabs))
		protected.POST("/tabs", handler.OpenTab(d.Tabs))
		protected.DELETE("/tabs/:id", handler.CloseTab(d.Tabs))
	}

	// Spiders
	protected.GET("/spiders", handler.ListSpiders(d.Spiders))
	protected.POST("/spiders/start", handler.StartSpider(d.Spiders))
	protected.POST("/spiders/stop", handler.StopSpider(d.Spiders))

	// Export list
	protected.GET("/export/tasks", handler.ExportTasks(d.Export))
	protected.GET("/export/output", handler.ExportOutput(d.Export))
	protected.DELETE("/export/tasks", handler.ClearExport(d.Export))

	// Progress log
	protected.GET("/logs", handler.Logs(d.Logs))

	return r
}
