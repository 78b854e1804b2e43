package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	BrowserRunning bool `json:"browser_running"`
	MaxPages       int  `json:"max_pages"`
	LivePages      int  `json:"live_pages"`
	ActivePages    int  `json:"active_pages"`
}

// HistoryStats summarises the scrape log.
type HistoryStats struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByMethod  map[string]int `json:"by_method"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int            `json:"total"`
}

// ErrorResponse is returned by middleware and for requests that never reach
// the scraper.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// NewErrorResponse builds an ErrorResponse.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}
