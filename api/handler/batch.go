package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/webhook"
)

const (
	// batchWorkers bounds concurrent runs within one batch.
	batchWorkers = 3

	batchTTL = time.Hour
)

// BatchStore holds in-flight and completed batch jobs. Jobs older than an
// hour are expired by a background sweep.
type BatchStore struct {
	jobs sync.Map
}

// NewBatchStore creates a BatchStore and starts its expiry sweep.
func NewBatchStore() *BatchStore {
	s := &BatchStore{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.expire(time.Now().Add(-batchTTL))
		}
	}()
	return s
}

func (s *BatchStore) put(job *models.BatchJob) { s.jobs.Store(job.ID, job) }

func (s *BatchStore) get(id string) (*models.BatchJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.BatchJob), true
}

func (s *BatchStore) expire(cutoff time.Time) {
	s.jobs.Range(func(key, value any) bool {
		if value.(*models.BatchJob).CreatedAt < cutoff.Unix() {
			s.jobs.Delete(key)
		}
		return true
	})
}

// PostBatch returns a handler for POST /api/v1/batch/scrape.
// It registers a job and scrapes the URLs in the background.
func PostBatch(store *BatchStore, sc Scraper, n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				models.ErrCodeInvalidInput, "invalid batch request: "+err.Error()))
			return
		}
		if len(req.URLs) > models.MaxBatchURLs {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				models.ErrCodeInvalidInput, "maximum 50 URLs per batch"))
			return
		}

		job := &models.BatchJob{
			ID:        uuid.NewString(),
			Status:    models.BatchProcessing,
			Total:     len(req.URLs),
			Results:   make([]*models.ScrapeResult, len(req.URLs)),
			CreatedAt: time.Now().Unix(),
		}
		store.put(job)

		go func() {
			runBatch(context.Background(), sc, job, req)
			notify(n, req.WebhookURL, req.WebhookSecret,
				webhook.NewEvent(webhook.EventBatchCompleted, job.ID, job.Snapshot()))
		}()

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.BatchProcessing,
			Total:  job.Total,
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(store *BatchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.NewErrorResponse(
				models.ErrCodeInvalidInput, "batch job not found"))
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// runBatch scrapes every URL of the job, at most batchWorkers at a time.
func runBatch(ctx context.Context, sc Scraper, job *models.BatchJob, req models.BatchRequest) {
	var g errgroup.Group
	g.SetLimit(batchWorkers)

	for i, target := range req.URLs {
		g.Go(func() error {
			job.SetResult(i, sc.RunRequest(ctx, &models.ScrapeRequest{
				URL:         target,
				Mode:        req.Mode,
				CSSSelector: req.CSSSelector,
			}))
			return nil
		})
	}
	// Runs report failures in their envelopes, so Wait never errors.
	_ = g.Wait()

	status := job.Finish()
	slog.Info("batch job finished",
		"id", job.ID,
		"status", status,
		"total", job.Total,
	)
}
