package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrapepal/history"
	"github.com/use-agent/scrapepal/models"
)

// History returns a handler for GET /api/v1/history.
// The optional ?limit=N keeps only the N most recent entries.
func History(h *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries := h.List()

		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				c.JSON(http.StatusBadRequest, models.NewErrorResponse(
					models.ErrCodeInvalidInput, "limit must be a non-negative integer"))
				return
			}
			if limit < len(entries) {
				entries = entries[len(entries)-limit:]
			}
		}

		c.JSON(http.StatusOK, models.HistoryResponse{
			Entries: entries,
			Total:   h.Len(),
		})
	}
}

// HistoryStats returns a handler for GET /api/v1/history/stats.
func HistoryStats(h *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Stats())
	}
}
