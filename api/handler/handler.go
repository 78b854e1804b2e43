// Package handler implements the HTTP endpoints of the scrape API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/webhook"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Scraper is the part of scraper.Scraper the handlers use.
type Scraper interface {
	RunRequest(ctx context.Context, req *models.ScrapeRequest) *models.ScrapeResult
	Stats() models.PoolStats
	Uptime() time.Duration
}

// Notifier delivers webhook events in the background.
type Notifier interface {
	DeliverAsync(url, secret string, event *webhook.Event) <-chan struct{}
}

// StatusFor translates an envelope error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNetwork, models.ErrCodeNavigation,
		models.ErrCodeHTTPStatus, models.ErrCodeUnsupportedContent:
		return http.StatusBadGateway // 502
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRobotsDisallowed:
		return http.StatusForbidden // 403
	default:
		return http.StatusInternalServerError // 500
	}
}

func notify(n Notifier, url, secret string, ev *webhook.Event) {
	if n == nil || url == "" {
		return
	}
	n.DeliverAsync(url, secret, ev)
}
