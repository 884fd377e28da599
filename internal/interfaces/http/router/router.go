package router

import (
	"github.com/gin-gonic/gin"

	"github.com/channelsync/backend/internal/interfaces/http/handler"
)

// Setup builds the gin engine with the service's operational routes
func Setup(ops *handler.OpsHandler, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", ops.Health)

	api := engine.Group("/api/v1")
	{
		events := api.Group("/events")
		{
			events.POST("/stock-changes", ops.PublishStockChanges)
		}

		reconcile := api.Group("/reconcile")
		{
			reconcile.GET("/history", ops.ReconcileHistory)
			reconcile.POST("/run", ops.RunReconcile)
		}

		requests := api.Group("/requests")
		{
			requests.GET("/stats", ops.RequestStats)
		}
	}

	return engine
}
