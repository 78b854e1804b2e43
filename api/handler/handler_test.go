package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/scrapepal/history"
	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeScraper fails every URL listed in failures with the given code and
// succeeds otherwise.
type fakeScraper struct {
	mu       sync.Mutex
	failures map[string]string
	stats    models.PoolStats
	seen     []*models.ScrapeRequest
}

func (f *fakeScraper) RunRequest(_ context.Context, req *models.ScrapeRequest) *models.ScrapeResult {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if code, ok := f.failures[req.URL]; ok {
		return models.NewFailure(req.URL, models.NewScrapeError(code, "failed", nil))
	}
	return &models.ScrapeResult{
		Success:     true,
		Method:      models.MethodStatic,
		URL:         req.URL,
		TextContent: "content of " + req.URL,
		Links:       []models.Link{},
		Images:      []models.Image{},
		JSONLD:      []models.JSONLD{},
	}
}

func (f *fakeScraper) Stats() models.PoolStats { return f.stats }
func (f *fakeScraper) Uptime() time.Duration   { return 90 * time.Second }

type fakeNotifier struct {
	mu     sync.Mutex
	events []*webhook.Event
	urls   []string
}

func (n *fakeNotifier) DeliverAsync(url, _ string, ev *webhook.Event) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	n.urls = append(n.urls, url)
	done := make(chan struct{})
	close(done)
	return done
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		"":                               http.StatusOK,
		models.ErrCodeInvalidInput:       http.StatusBadRequest,
		models.ErrCodeTimeout:            http.StatusGatewayTimeout,
		models.ErrCodeNetwork:            http.StatusBadGateway,
		models.ErrCodeNavigation:         http.StatusBadGateway,
		models.ErrCodeHTTPStatus:         http.StatusBadGateway,
		models.ErrCodeUnsupportedContent: http.StatusBadGateway,
		models.ErrCodeRateLimited:        http.StatusTooManyRequests,
		models.ErrCodeUnauthorized:       http.StatusUnauthorized,
		models.ErrCodeRobotsDisallowed:   http.StatusForbidden,
		models.ErrCodeBrowserCrash:       http.StatusInternalServerError,
		models.ErrCodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, StatusFor(code), code)
	}
}

func TestScrape(t *testing.T) {
	sc := &fakeScraper{failures: map[string]string{"https://down.example": models.ErrCodeNetwork}}
	n := &fakeNotifier{}
	r := gin.New()
	r.POST("/scrape", Scrape(sc, n))

	t.Run("success", func(t *testing.T) {
		w := postJSON(r, "/scrape", map[string]any{"url": "https://ok.example", "webhook_url": "https://hooks.example/x"})
		require.Equal(t, http.StatusOK, w.Code)

		var res models.ScrapeResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.True(t, res.Success)
		assert.Equal(t, "content of https://ok.example", res.TextContent)
		assert.Equal(t, "auto", sc.seen[len(sc.seen)-1].Mode, "defaults applied")
		require.Equal(t, 1, n.count())
		assert.Equal(t, webhook.EventScrapeCompleted, n.events[0].Type)
		assert.Equal(t, "https://hooks.example/x", n.urls[0])
	})

	t.Run("mapped failure", func(t *testing.T) {
		w := postJSON(r, "/scrape", map[string]any{"url": "https://down.example"})
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var res models.ScrapeResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Equal(t, models.ErrCodeNetwork, res.ErrorCode)
		assert.Equal(t, 1, n.count(), "no webhook without webhook_url")
	})

	t.Run("bad body", func(t *testing.T) {
		for _, body := range []any{
			map[string]any{},
			map[string]any{"url": "https://ok.example", "mode": "turbo"},
			map[string]any{"url": "https://ok.example", "max_age": -1},
		} {
			w := postJSON(r, "/scrape", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var res models.ScrapeResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, models.ErrCodeInvalidInput, res.ErrorCode)
			assert.NotNil(t, res.Links)
		}
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name  string
		stats models.PoolStats
		want  string
	}{
		{"idle", models.PoolStats{MaxPages: 5, ActivePages: 1}, "healthy"},
		{"no pool", models.PoolStats{}, "healthy"},
		{"at 80 percent", models.PoolStats{MaxPages: 5, ActivePages: 4}, "healthy"},
		{"busy", models.PoolStats{MaxPages: 5, ActivePages: 5}, "degraded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", Health(&fakeScraper{stats: tc.stats}))

			w := get(r, "/health")
			require.Equal(t, http.StatusOK, w.Code)
			var resp models.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.want, resp.Status)
			assert.Equal(t, "1m30s", resp.Uptime)
			assert.Equal(t, Version, resp.Version)
		})
	}
}

func TestBatch(t *testing.T) {
	sc := &fakeScraper{failures: map[string]string{"https://b.example": models.ErrCodeTimeout}}
	n := &fakeNotifier{}
	store := &BatchStore{}
	r := gin.New()
	r.POST("/batch/scrape", PostBatch(store, sc, n))
	r.GET("/batch/:id", GetBatch(store))

	w := postJSON(r, "/batch/scrape", models.BatchRequest{
		URLs:       []string{"https://a.example", "https://b.example", "https://c.example"},
		Mode:       "static",
		WebhookURL: "https://hooks.example/batch",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var created models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.ID, 36)
	assert.Equal(t, 3, created.Total)

	var status models.BatchStatusResponse
	require.Eventually(t, func() bool {
		resp := get(r, "/batch/"+created.ID)
		if resp.Code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(resp.Body.Bytes(), &status)
		return status.Status != models.BatchProcessing
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.BatchPartial, status.Status)
	assert.Equal(t, 3, status.Completed)
	require.Len(t, status.Results, 3)
	assert.Equal(t, "https://a.example", status.Results[0].URL)
	assert.False(t, status.Results[1].Success)
	assert.Equal(t, models.ErrCodeTimeout, status.Results[1].ErrorCode)

	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, webhook.EventBatchCompleted, n.events[0].Type)
	assert.Equal(t, created.ID, n.events[0].JobID)
}

func TestBatch_Validation(t *testing.T) {
	store := &BatchStore{}
	r := gin.New()
	r.POST("/batch/scrape", PostBatch(store, &fakeScraper{}, nil))
	r.GET("/batch/:id", GetBatch(store))

	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/batch/scrape", map[string]any{"urls": []string{}}).Code)

	tooMany := make([]string, models.MaxBatchURLs+1)
	for i := range tooMany {
		tooMany[i] = "https://example.com"
	}
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/batch/scrape", map[string]any{"urls": tooMany}).Code)

	assert.Equal(t, http.StatusNotFound, get(r, "/batch/unknown").Code)
}

func TestBatchStore_Expire(t *testing.T) {
	store := &BatchStore{}
	store.put(&models.BatchJob{ID: "old", CreatedAt: time.Now().Add(-2 * time.Hour).Unix()})
	store.put(&models.BatchJob{ID: "new", CreatedAt: time.Now().Unix()})

	store.expire(time.Now().Add(-time.Hour))

	_, ok := store.get("old")
	assert.False(t, ok)
	_, ok = store.get("new")
	assert.True(t, ok)
}

func TestHistoryEndpoints(t *testing.T) {
	h := history.New(10)
	h.Append(models.HistoryEntry{URL: "https://1.example", Status: "success", Method: models.MethodStatic})
	h.Append(models.HistoryEntry{URL: "https://2.example", Status: "failed"})
	h.Append(models.HistoryEntry{URL: "https://3.example", Status: "success", Method: models.MethodDynamic})

	r := gin.New()
	r.GET("/history", History(h))
	r.GET("/history/stats", HistoryStats(h))

	var resp models.HistoryResponse
	w := get(r, "/history")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "https://1.example", resp.Entries[0].URL)

	w = get(r, "/history?limit=2")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "https://2.example", resp.Entries[0].URL)

	assert.Equal(t, http.StatusBadRequest, get(r, "/history?limit=abc").Code)

	var st models.HistoryStats
	w = get(r, "/history/stats")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Succeeded)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.ByMethod["dynamic"])
}
