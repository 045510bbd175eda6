package app

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"koinonia.app/notifier/internal/api/handlers"
	"koinonia.app/notifier/internal/api/middleware"
	"koinonia.app/notifier/internal/config"
	"koinonia.app/notifier/internal/pkg/logger"
)

// defaultAllowedOrigins applies when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:8081",
	"http://localhost:19006",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	api.GET("/health/live", server.GetLiveness)
	api.GET("/health/ready", server.GetReadiness)

	api.POST("/events/entity-created",
		middleware.RequireIngestSecret(cfg.Security.IngestSecret),
		server.IngestEntityCreated,
	)

	callable := api.Group("/callable", middleware.JWTAuth(jwtCfg))
	callable.POST("/getUserFeeds", server.GetUserFeeds)
	callable.POST("/broadcast", middleware.RequirePermission(middleware.PermissionBroadcast), server.SendBroadcast)

	admin := api.Group("/admin",
		middleware.JWTAuth(jwtCfg),
		middleware.RequirePermission(middleware.PermissionPlatformAdmin),
	)
	levelHandler := gin.WrapH(logger.LevelHandler())
	admin.GET("/log/level", levelHandler)
	admin.PUT("/log/level", levelHandler)

	return router
}

func buildCORSConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		corsCfg.AllowAllOrigins = true
		// Browsers reject credentialed requests to a wildcard origin.
		corsCfg.AllowCredentials = false
		return corsCfg
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, origin := range cfg.Server.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}
