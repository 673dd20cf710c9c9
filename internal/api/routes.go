package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/handler"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/middleware"
)

// SetupRoutes configures all API routes.
// Health routes are registered by the infrastructure gin builder.
func SetupRoutes(
	router *gin.Engine,
	viewHandler *handler.ViewHandler,
	gatherer prometheus.Gatherer,
	maxViewsPerMin int,
	rateLimitWindow time.Duration,
	done <-chan struct{},
) {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	views := router.Group("/api/v1/views")
	views.GET("/pending", viewHandler.Pending)
	views.POST("/flush", viewHandler.Flush)

	// Static segments win over the parameter, so /flush never reaches RecordView.
	views.POST("/:item_id",
		middleware.BotFilter(),
		middleware.RateLimiter(maxViewsPerMin, rateLimitWindow, done),
		viewHandler.RecordView,
	)
}
