package api

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrapepal/api/handler"
	"github.com/use-agent/scrapepal/api/middleware"
	"github.com/use-agent/scrapepal/config"
	"github.com/use-agent/scrapepal/history"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health is outside auth so monitoring probes always work.
func NewRouter(sc handler.Scraper, hist *history.Store, n handler.Notifier, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sc))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(sc, n))

	batches := handler.NewBatchStore()
	protected.POST("/batch/scrape", handler.PostBatch(batches, sc, n))
	protected.GET("/batch/:id", handler.GetBatch(batches))

	if hist != nil {
		protected.GET("/history", handler.History(hist))
		protected.GET("/history/stats", handler.HistoryStats(hist))
	}

	return r
}
