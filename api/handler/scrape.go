package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/webhook"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// The response body is always the scrape envelope. Failures carry the HTTP
// status mapped from error_code.
func Scrape(sc Scraper, n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewFailure(req.URL,
				models.NewScrapeError(models.ErrCodeInvalidInput, "invalid request body", err)))
			return
		}
		req.Defaults()

		res := sc.RunRequest(c.Request.Context(), &req)
		notify(n, req.WebhookURL, req.WebhookSecret,
			webhook.NewEvent(webhook.EventScrapeCompleted, "", res))

		c.JSON(StatusFor(res.ErrorCode), res)
	}
}
