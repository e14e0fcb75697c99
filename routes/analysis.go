package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"review-insights-platform/models"
	"review-insights-platform/services"
	"review-insights-platform/utils"
)

// SetupAnalysisRoutes registers LLM analysis and its history
func SetupAnalysisRoutes(api *gin.RouterGroup, analysis *services.AnalysisService, limiter gin.HandlerFunc) {
	api.POST("/analyze", limiter, func(c *gin.Context) {
		var body struct {
			CollectionName string `json:"collectionName"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.CollectionName == "" {
			utils.RespondWithBadRequest(c, "collectionName is required", nil)
			return
		}

		rec, err := analysis.AnalyzeCollection(c.Request.Context(), body.CollectionName)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "analysis": rec})
	})

	api.POST("/analyze-filtered", limiter, func(c *gin.Context) {
		var body struct {
			Reviews    []models.ReviewRecord  `json:"reviews"`
			FilterInfo map[string]interface{} `json:"filterInfo"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			utils.RespondWithBadRequest(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}

		rec, err := analysis.AnalyzeFiltered(c.Request.Context(), body.Reviews, filterValues(body.FilterInfo))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "analysis": rec})
	})

	api.POST("/benchmark", limiter, func(c *gin.Context) {
		var body struct {
			CollectionName string `json:"collectionName"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.CollectionName == "" {
			utils.RespondWithBadRequest(c, "collectionName is required", nil)
			return
		}

		rec, err := analysis.BenchmarkSellers(c.Request.Context(), body.CollectionName)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"analysis":            rec,
			"highestRatingSeller": rec.Benchmark.HighestRating,
			"cheapestSeller":      rec.Benchmark.Cheapest,
			"sellersAnalyzed":     len(rec.Benchmark.Sellers),
		})
	})

	api.POST("/product-benchmark", limiter, func(c *gin.Context) {
		var body struct {
			Product1ID string `json:"product1Id"`
			Product2ID string `json:"product2Id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			utils.RespondWithBadRequest(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}

		rec, err := analysis.CompareProducts(c.Request.Context(), body.Product1ID, body.Product2ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "comparison": rec.Result, "analysis": rec})
	})

	api.POST("/analysis-history", func(c *gin.Context) {
		var rec models.AnalysisRecord
		if err := c.ShouldBindJSON(&rec); err != nil {
			utils.RespondWithBadRequest(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}

		saved, err := analysis.SaveHistory(c.Request.Context(), rec)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "analysisId": saved.ID, "analysis": saved})
	})

	api.GET("/analysis-history", func(c *gin.Context) {
		limit, ok := queryLimit(c, 50)
		if !ok {
			return
		}
		history, err := analysis.ListHistory(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "history": history, "count": len(history)})
	})

	api.DELETE("/analysis-history", func(c *gin.Context) {
		id := c.Query("id")
		if id == "" {
			utils.RespondWithBadRequest(c, "id is required", nil)
			return
		}
		deleted, err := analysis.DeleteHistory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !deleted {
			utils.RespondWithNotFound(c, fmt.Sprintf("analysis %s not found", id))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "deletedId": id})
	})
}

// filterValues flattens browse filters; numbers and booleans are kept as text
func filterValues(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
