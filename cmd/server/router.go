package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/browser-bridge/bridge/api/handlers"
	"github.com/browser-bridge/bridge/internal/config"
	"github.com/browser-bridge/bridge/internal/repository"
	"github.com/browser-bridge/bridge/internal/ws"
)

const version = "1.0.0"

func newRouter(cfg *config.Config, relay *ws.Relay, journal *repository.JournalRepository, limiter *rate.Limiter, log zerolog.Logger) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	policy := handlers.NewOriginPolicy(cfg.AllowedOrigins)
	relay.SetCheckOrigin(policy.CheckOrigin)

	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(log), handlers.Metrics(), policy.CORS())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   "browser-bridge",
			"version":   version,
			"status":    "running",
			"websocket": "/ws",
			"api":       "/api/browser",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.NewWebSocketHandler(relay, log).RegisterRoutes(&r.RouterGroup)
	handlers.NewBrowserHandler(relay, journal, log).RegisterRoutes(r.Group("/api/browser"), handlers.RateLimit(limiter))

	return r
}
