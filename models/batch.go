package models

import "sync"

// MaxBatchURLs caps the size of a single batch request.
const MaxBatchURLs = 50

// BatchRequest is the payload for POST /api/v1/batch/scrape.
type BatchRequest struct {
	// URLs is the list of target pages to scrape. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=50"`

	// Mode is applied to every URL. Default: "auto".
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=auto static dynamic"`

	CSSSelector string `json:"css_selector,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/scrape.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Results   []*ScrapeResult `json:"results,omitempty"`
}

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchJob tracks an in-progress batch scrape operation.
type BatchJob struct {
	mu        sync.Mutex
	ID        string
	Status    string
	Total     int
	Completed int
	Results   []*ScrapeResult
	CreatedAt int64 // unix timestamp
}

// SetResult stores the result for slot idx and bumps the completed count.
func (j *BatchJob) SetResult(idx int, r *ScrapeResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Results[idx] = r
	j.Completed++
}

// Finish derives the terminal status from the stored results.
func (j *BatchJob) Finish() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	failed := 0
	for _, r := range j.Results {
		if r == nil || !r.Success {
			failed++
		}
	}
	switch {
	case failed == j.Total:
		j.Status = BatchFailed
	case failed > 0:
		j.Status = BatchPartial
	default:
		j.Status = BatchCompleted
	}
	return j.Status
}

// Snapshot returns a consistent copy for the status endpoint.
func (j *BatchJob) Snapshot() BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]*ScrapeResult, len(j.Results))
	copy(results, j.Results)
	return BatchStatusResponse{
		ID:        j.ID,
		Status:    j.Status,
		Completed: j.Completed,
		Total:     j.Total,
		Results:   results,
	}
}
