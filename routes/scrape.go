package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"review-insights-platform/internal/queue"
	"review-insights-platform/middleware"
	"review-insights-platform/models"
	"review-insights-platform/utils"
)

// TaskQueue is the async scrape surface; nil when the queue is disabled
type TaskQueue interface {
	EnqueueScrape(ctx context.Context, req models.ScrapeRequest, requestID string) (string, error)
	TaskStatus(id string) (*queue.TaskStatus, error)
}

// SetupScrapeRoutes registers the synchronous and queued scrape endpoints.
// limiter guards the endpoints that start scrapers.
func SetupScrapeRoutes(api *gin.RouterGroup, scraper queue.Scraper, tasks TaskQueue, limiter gin.HandlerFunc) {
	api.GET("/platforms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "platforms": models.SupportedPlatforms})
	})

	// Runs one scraper to completion; may take minutes
	api.POST("/scrape", limiter, func(c *gin.Context) {
		req, ok := bindScrapeRequest(c)
		if !ok {
			return
		}

		resp, err := scraper.Scrape(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusFor(err), resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	api.POST("/scrape/async", limiter, func(c *gin.Context) {
		if tasks == nil {
			utils.RespondWithServiceUnavailable(c, "async scraping is disabled")
			return
		}
		req, ok := bindScrapeRequest(c)
		if !ok {
			return
		}

		id, err := tasks.EnqueueScrape(c.Request.Context(), req, middleware.GetRequestID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true, "task_id": id})
	})

	api.GET("/scrape/tasks/:id", func(c *gin.Context) {
		if tasks == nil {
			utils.RespondWithServiceUnavailable(c, "async scraping is disabled")
			return
		}
		status, err := tasks.TaskStatus(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "task": status})
	})
}

func bindScrapeRequest(c *gin.Context) (models.ScrapeRequest, bool) {
	var input models.ScrapeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithBadRequest(c, "invalid request body", gin.H{"reason": err.Error()})
		return models.ScrapeRequest{}, false
	}
	req, err := input.ToRequest()
	if err != nil {
		respondError(c, err)
		return models.ScrapeRequest{}, false
	}
	return req, true
}
