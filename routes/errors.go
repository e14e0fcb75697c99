package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"review-insights-platform/internal/ai"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/queue"
	"review-insights-platform/internal/scraper"
	"review-insights-platform/middleware"
	"review-insights-platform/models"
	"review-insights-platform/services"
	"review-insights-platform/utils"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	var validation *models.ValidationError
	var timeout *scraper.TimeoutError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrEmptyCollection), errors.Is(err, services.ErrNoSellers),
		errors.Is(err, services.ErrAnalysisNotFound), errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, ai.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes the failure envelope for err
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			"request_id", middleware.GetRequestID(c),
			"path", c.FullPath(),
			"error", err)
	}
	utils.RespondWithError(c, status, errorCode(status), err.Error(), nil)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	}
	return "internal_error"
}

// queryLimit reads ?limit=, falling back to def
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		utils.RespondWithBadRequest(c, "limit must be a non-negative integer", gin.H{"limit": raw})
		return 0, false
	}
	return limit, true
}
