package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/scrapepal/cache"
	"github.com/use-agent/scrapepal/config"
	"github.com/use-agent/scrapepal/engine"
	"github.com/use-agent/scrapepal/extractor"
	"github.com/use-agent/scrapepal/history"
	"github.com/use-agent/scrapepal/models"
)

type fakeEngine struct {
	name  string
	html  string
	err   error
	panic bool
	calls atomic.Int32
	last  *engine.FetchRequest
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f.calls.Add(1)
	f.last = req
	if f.panic {
		panic("engine exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &engine.FetchResult{
		HTML:       f.html,
		Title:      "engine title",
		StatusCode: 200,
		FinalURL:   req.URL,
		EngineName: f.name,
	}, nil
}

func (f *fakeEngine) Close() error { return nil }

var richPage = `<html><head><title>Rich</title></head><body><article>` +
	strings.Repeat("<p>Static pages carry their content in the initial response body. </p>", 10) +
	`<a href="/next">next</a></article></body></html>`

const shellPage = `<html><head></head><body><div id="root"></div><script src="/app.js"></script></body></html>`

var renderedPage = `<html><head><title>Rendered</title></head><body><div id="root"><main>` +
	strings.Repeat("<p>Content rendered by the browser after scripts ran. </p>", 10) +
	`</main></div></body></html>`

func newTestScraper(static, dynamic *fakeEngine, opts ...Option) *Scraper {
	sel := engine.NewSelector(static, dynamic, engine.DefaultEscalationPolicy(), nil)
	return New(sel, extractor.New(config.ExtractConfig{}), opts...)
}

func TestRun_StaticSuccess(t *testing.T) {
	static := &fakeEngine{name: models.MethodStatic, html: richPage}
	dynamic := &fakeEngine{name: models.MethodDynamic, html: renderedPage}
	s := newTestScraper(static, dynamic)

	res := s.Run(context.Background(), "https://example.com/page", "static")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.MethodStatic, res.Method)
	assert.Equal(t, "https://example.com/page", res.URL)
	assert.Equal(t, "https://example.com/page", res.FinalURL)
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.TextContent, "Static pages carry their content")
	assert.Equal(t, "Rich", res.Structure.Title)
	assert.Contains(t, res.Links, models.Link{URL: "https://example.com/next", Text: "next"})
	assert.Empty(t, res.Error)
	assert.Empty(t, res.ErrorCode)
	assert.False(t, res.Escalated)
	assert.GreaterOrEqual(t, res.Timing.TotalMs, res.Timing.FetchMs)
	assert.EqualValues(t, 0, dynamic.calls.Load())
}

func TestRun_DynamicOnly(t *testing.T) {
	static := &fakeEngine{name: models.MethodStatic, html: richPage}
	dynamic := &fakeEngine{name: models.MethodDynamic, html: renderedPage}
	s := newTestScraper(static, dynamic)

	res := s.Run(context.Background(), "https://example.com", "DYNAMIC")

	require.True(t, res.Success)
	assert.Equal(t, models.MethodDynamic, res.Method)
	assert.EqualValues(t, 0, static.calls.Load())
	assert.EqualValues(t, 1, dynamic.calls.Load())
}

func TestRun_AutoEscalatesShell(t *testing.T) {
	static := &fakeEngine{name: models.MethodStatic, html: shellPage}
	dynamic := &fakeEngine{name: models.MethodDynamic, html: renderedPage}
	s := newTestScraper(static, dynamic)

	res := s.Run(context.Background(), "https://spa.example.com", "")

	require.True(t, res.Success)
	assert.Equal(t, models.MethodDynamic, res.Method)
	assert.True(t, res.Escalated)
	assert.NotEmpty(t, res.EscalationReason)
	assert.Contains(t, res.TextContent, "rendered by the browser")
}

func TestRun_AutoKeepsRichStatic(t *testing.T) {
	static := &fakeEngine{name: models.MethodStatic, html: richPage}
	dynamic := &fakeEngine{name: models.MethodDynamic, html: renderedPage}
	s := newTestScraper(static, dynamic)

	res := s.Run(context.Background(), "https://example.com", "auto")

	require.True(t, res.Success)
	assert.Equal(t, models.MethodStatic, res.Method)
	assert.EqualValues(t, 0, dynamic.calls.Load())
}

func TestRun_InvalidInput(t *testing.T) {
	s := newTestScraper(&fakeEngine{name: "static"}, &fakeEngine{name: "dynamic"})

	tests := []struct {
		name string
		req  *models.ScrapeRequest
	}{
		{"nil request", nil},
		{"empty url", &models.ScrapeRequest{URL: "  "}},
		{"no scheme", &models.ScrapeRequest{URL: "example.com/page"}},
		{"ftp scheme", &models.ScrapeRequest{URL: "ftp://example.com"}},
		{"no host", &models.ScrapeRequest{URL: "https:///path"}},
		{"bad escape", &models.ScrapeRequest{URL: "https://exa mple.com/%zz"}},
		{"unknown mode", &models.ScrapeRequest{URL: "https://example.com", Mode: "turbo"}},
		{"bad selector", &models.ScrapeRequest{URL: "https://example.com", CSSSelector: "[[x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := s.RunRequest(context.Background(), tc.req)
			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Equal(t, models.ErrCodeInvalidInput, res.ErrorCode)
			assert.NotEmpty(t, res.Error)
			assert.Empty(t, res.TextContent)
			assert.NotNil(t, res.Links)
			assert.NotNil(t, res.Images)
			assert.NotNil(t, res.JSONLD)
		})
	}
}

func TestRun_FetchFailure(t *testing.T) {
	fetchErr := models.NewScrapeError(models.ErrCodeNetwork, "network error: could not resolve host nowhere.invalid", nil)
	s := newTestScraper(&fakeEngine{name: "static", err: fetchErr}, &fakeEngine{name: "dynamic"})

	res := s.Run(context.Background(), "https://nowhere.invalid", "static")

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeNetwork, res.ErrorCode)
	assert.Equal(t, "network error: could not resolve host nowhere.invalid", res.Error)
	assert.Nil(t, res.Structure)
}

func TestRun_UntypedErrorIsInternal(t *testing.T) {
	s := newTestScraper(&fakeEngine{name: "static", err: errors.New("boom")}, &fakeEngine{name: "dynamic"})
	res := s.Run(context.Background(), "https://example.com", "static")
	assert.Equal(t, models.ErrCodeInternal, res.ErrorCode)
	assert.Equal(t, "boom", res.Error)
}

func TestRun_RecoversPanics(t *testing.T) {
	h := history.New(10)
	s := newTestScraper(&fakeEngine{name: "static", panic: true}, &fakeEngine{name: "dynamic"}, WithHistory(h))

	res := s.Run(context.Background(), "https://example.com", "static")

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeInternal, res.ErrorCode)
	assert.Contains(t, res.Error, "engine exploded")
	assert.Equal(t, 1, h.Len())
}

func TestRunRequest_ForwardsOptions(t *testing.T) {
	static := &fakeEngine{name: models.MethodStatic, html: richPage}
	s := newTestScraper(static, &fakeEngine{name: "dynamic"})

	res := s.RunRequest(context.Background(), &models.ScrapeRequest{
		URL:              " https://example.com ",
		Mode:             "static",
		CSSSelector:      "a",
		ExcludeSelectors: []string{"title"},
		Headers:          map[string]string{"X-Test": "1"},
		Stealth:          true,
	})

	require.True(t, res.Success)
	assert.Equal(t, "next", res.TextContent)
	assert.Equal(t, "engine title", res.Structure.Title, "excluded <title> falls back to the engine title")
	assert.Equal(t, "https://example.com", static.last.URL)
	assert.Equal(t, "1", static.last.Headers["X-Test"])
	assert.True(t, static.last.Stealth)
}

func TestRun_Cache(t *testing.T) {
	static := &fakeEngine{name: models.MethodStatic, html: richPage}
	c := cache.New(10)
	defer c.Stop()
	s := newTestScraper(static, &fakeEngine{name: "dynamic"}, WithCache(c))

	req := &models.ScrapeRequest{URL: "https://example.com", Mode: "static", MaxAge: 60_000}

	first := s.RunRequest(context.Background(), req)
	require.True(t, first.Success)
	assert.Equal(t, "miss", first.CacheStatus)

	second := s.RunRequest(context.Background(), req)
	require.True(t, second.Success)
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.TextContent, second.TextContent)
	assert.EqualValues(t, 1, static.calls.Load())

	noCache := s.Run(context.Background(), "https://example.com", "static")
	assert.Empty(t, noCache.CacheStatus)
	assert.EqualValues(t, 2, static.calls.Load())
}

func TestRun_RecordsHistory(t *testing.T) {
	h := history.New(10)
	s := newTestScraper(&fakeEngine{name: models.MethodStatic, html: richPage}, &fakeEngine{name: "dynamic"}, WithHistory(h))

	s.Run(context.Background(), "https://example.com", "static")
	s.Run(context.Background(), "not a url", "static")

	entries := h.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, models.MethodStatic, entries[0].Method)
	assert.NotEmpty(t, entries[0].DataPreview)
	assert.Equal(t, "failed", entries[1].Status)
	assert.Same(t, h, s.History())
}

func TestValidateURL(t *testing.T) {
	got, err := ValidateURL("  HTTPS://Example.com/a?b=c  ")
	require.NoError(t, err)
	assert.Equal(t, "HTTPS://Example.com/a?b=c", got)

	_, err = ValidateURL("mailto:someone@example.com")
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestStatsWithoutPool(t *testing.T) {
	s := newTestScraper(&fakeEngine{name: "static"}, &fakeEngine{name: "dynamic"})
	assert.Equal(t, models.PoolStats{}, s.Stats())
	assert.NoError(t, s.Close())
}

func TestRun_RobotsDisallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	}))
	defer srv.Close()

	static := &fakeEngine{name: models.MethodStatic, html: richPage}
	s := newTestScraper(static, &fakeEngine{name: "dynamic"},
		WithRobots(engine.NewRobotsGuard("TestBot/1.0", time.Second)))

	blocked := s.Run(context.Background(), srv.URL+"/private/page", "static")
	assert.False(t, blocked.Success)
	assert.Equal(t, models.ErrCodeRobotsDisallowed, blocked.ErrorCode)
	assert.EqualValues(t, 0, static.calls.Load())

	open := s.Run(context.Background(), srv.URL+"/public/page", "static")
	assert.True(t, open.Success)
	assert.EqualValues(t, 1, static.calls.Load())
}
