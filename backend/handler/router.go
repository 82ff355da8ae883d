package handler

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/AnTengye/contractdash/backend/config"
	"github.com/AnTengye/contractdash/backend/middleware"
	"github.com/AnTengye/contractdash/backend/service"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the middleware chain and every route of the dashboard API
func NewRouter(cfg *config.Config, registry *service.Registry) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins...))
	router.Use(middleware.NoCache())
	router.Use(middleware.RateLimit(100, time.Minute))

	if dir := cfg.Server.StaticDir; dir != "" {
		serveStatic(router, dir)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	authHandler := NewAuthHandler(cfg)
	dashboardHandler := NewDashboardHandler(registry, int64(cfg.Analysis.MaxUploadMB)<<20)

	analyze := []gin.HandlerFunc{dashboardHandler.Analyze}
	if cfg.Analysis.RateLimit > 0 {
		analyze = append([]gin.HandlerFunc{
			middleware.RateLimitBy(cfg.Analysis.RateLimit, time.Minute, middleware.ByTenant),
		}, analyze...)
	}

	api := router.Group("/api")
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.GET("/dashboard", dashboardHandler.Get)
		protected.DELETE("/dashboard", dashboardHandler.ClearAll)
		protected.PUT("/dashboard/config", dashboardHandler.Configure)
		protected.PUT("/dashboard/analysis-type", dashboardHandler.SetAnalysisType)
		protected.PUT("/dashboard/custom-query", dashboardHandler.SetCustomQuery)
		protected.PUT("/dashboard/tab", dashboardHandler.SetTab)
		protected.PUT("/dashboard/upload-state", dashboardHandler.SetUploadState)
		protected.POST("/dashboard/analyze", analyze...)
		protected.POST("/dashboard/new-upload", dashboardHandler.NewUpload)
		protected.GET("/dashboard/history", dashboardHandler.History)
		protected.DELETE("/dashboard/history", dashboardHandler.ClearHistory)

		protected.GET("/storage/status", dashboardHandler.StorageStatus)
	}

	return router
}

func serveStatic(router *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		slog.Warn("static directory has no index.html, not serving it", "directory", dir)
		return
	}
	slog.Info("serving static files", "directory", dir)

	router.Static("/static", dir)
	router.StaticFile("/", index)
	router.StaticFile("/index.html", index)
}
