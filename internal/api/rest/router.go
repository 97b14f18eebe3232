package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"github.com/uptrace/bun"

	"github.com/storyforge/storyforge/internal/cache"
	"github.com/storyforge/storyforge/internal/logging"
	"github.com/storyforge/storyforge/internal/orchestrator"
)

// NewRouter assembles the gin engine: recovery/logging/tracing middleware,
// health/readiness probes, and the generation endpoint. db and redisCache
// may be nil, in which case /health reports that dependency as unchecked
// rather than unhealthy (both trail persistence and the generation cache
// are best-effort, per internal/orchestrator and internal/cache).
func NewRouter(logger *logging.Logger, orch *orchestrator.Orchestrator, db *bun.DB, redisCache *cache.RedisCache, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(logger))
	router.Use(RequestLogger(logger))
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := gin.H{"status": "healthy"}

		if db == nil {
			status["database"] = "unchecked"
		} else if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}

		if redisCache == nil {
			status["redis"] = "unchecked"
		} else if latency, err := redisCache.HealthWithLatency(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		} else {
			status["redis"] = gin.H{"latency_ms": latency.Milliseconds()}
		}

		c.JSON(http.StatusOK, status)
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	generationHandlers := NewGenerationHandlers(orch)
	wsHandlers := NewWebSocketHandlers(orch.Hub, logger)
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/generations", generationHandlers.HandleGenerate)
		apiV1.GET("/generations/:request_id/stream", wsHandlers.HandleStream)
	}

	return router
}
