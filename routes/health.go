package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"review-insights-platform/internal/store"
	"review-insights-platform/utils"
)

// SetupHealthRoutes registers liveness, readiness and the Prometheus endpoint
func SetupHealthRoutes(router *gin.Engine, st store.CollectionStore, registry *prometheus.Registry) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()
		if _, err := st.ListCollections(ctx); err != nil {
			utils.RespondWithServiceUnavailable(c, "storage unavailable: "+err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}
