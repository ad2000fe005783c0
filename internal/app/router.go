package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bustrack/internal/handler"
	"bustrack/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler    *handler.TripHandler
	SessionHandler *handler.SessionHandler
	QueueHandler   *handler.QueueHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Trip routes.
		trip := v1.Group("/trip")
		{
			trip.GET("", deps.TripHandler.GetTrip)
			trip.POST("/start", deps.TripHandler.StartTrip)
			trip.POST("/stop", deps.TripHandler.StopTrip)
			trip.GET("/recovery", deps.TripHandler.GetRecovery)
			trip.POST("/recovery", deps.TripHandler.ResolveRecovery)
		}

		// Session routes.
		v1.POST("/session", deps.SessionHandler.SetSession)

		// Queue routes.
		queue := v1.Group("/queue")
		{
			queue.GET("", deps.QueueHandler.GetQueue)
			queue.POST("/flush", deps.QueueHandler.FlushQueue)
		}
	}

	return router
}
