// Package scraper composes the fetch engines and the extractor into a single
// run that always yields a result envelope.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/scrapepal/cache"
	"github.com/use-agent/scrapepal/config"
	"github.com/use-agent/scrapepal/engine"
	"github.com/use-agent/scrapepal/extractor"
	"github.com/use-agent/scrapepal/history"
	"github.com/use-agent/scrapepal/models"
)

// Scraper runs scrapes end to end. It is safe for concurrent use.
type Scraper struct {
	selector  *engine.Selector
	extractor *extractor.Extractor
	cache     *cache.Cache
	history   *history.Store
	robots    *engine.RobotsGuard
	startTime time.Time
}

// Option configures optional Scraper collaborators.
type Option func(*Scraper)

// WithCache serves and stores results for requests that set max_age.
func WithCache(c *cache.Cache) Option {
	return func(s *Scraper) { s.cache = c }
}

// WithHistory appends every run to h.
func WithHistory(h *history.Store) Option {
	return func(s *Scraper) { s.history = h }
}

// WithRobots refuses URLs that the site's robots.txt disallows.
func WithRobots(g *engine.RobotsGuard) Option {
	return func(s *Scraper) { s.robots = g }
}

// New creates a Scraper from an engine selector and an extractor.
func New(sel *engine.Selector, ex *extractor.Extractor, opts ...Option) *Scraper {
	s := &Scraper{
		selector:  sel,
		extractor: ex,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig wires the engines, the escalation policy and the optional
// domain memory from cfg, plus the cache, the history log and the robots.txt
// guard when enabled. The browser is not launched until the first dynamic fetch.
func NewFromConfig(cfg *config.Config) *Scraper {
	sel := engine.NewSelector(
		engine.NewHTTPEngine(cfg.Fetch),
		engine.NewRodEngine(cfg.Browser, cfg.Pool),
		engine.NewEscalationPolicy(cfg.Escalation),
		engine.NewDomainMemory(cfg.Escalation.DomainMemoryTTL),
	)
	opts := []Option{
		WithCache(cache.New(cfg.Cache.MaxEntries)),
		WithHistory(history.New(cfg.History.MaxEntries)),
	}
	if cfg.Fetch.RespectRobots {
		opts = append(opts, WithRobots(engine.NewRobotsGuard(cfg.Fetch.UserAgent, cfg.Fetch.Timeout)))
	}
	return New(sel, extractor.New(cfg.Extract), opts...)
}

// Run scrapes rawURL with the given mode ("auto", "static" or "dynamic").
// It never returns nil and never panics.
func (s *Scraper) Run(ctx context.Context, rawURL, mode string) *models.ScrapeResult {
	return s.RunRequest(ctx, &models.ScrapeRequest{URL: rawURL, Mode: mode})
}

// RunRequest scrapes with the full set of request options. Every failure,
// including invalid input and internal panics, is reported in the envelope.
func (s *Scraper) RunRequest(ctx context.Context, req *models.ScrapeRequest) (res *models.ScrapeResult) {
	start := time.Now()
	requested := ""
	if req != nil {
		requested = req.URL
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("scrape panicked", "url", requested, "panic", r)
			res = models.NewFailure(requested, models.NewScrapeError(
				models.ErrCodeInternal, "unexpected internal error", fmt.Errorf("%v", r)))
		}
		res.Timing.TotalMs = time.Since(start).Milliseconds()
		if res.Success {
			slog.Info("scrape finished",
				"url", res.URL,
				"method", res.Method,
				"escalated", res.Escalated,
				"cache", res.CacheStatus,
				"total_ms", res.Timing.TotalMs,
			)
		} else {
			slog.Warn("scrape failed",
				"url", res.URL,
				"code", res.ErrorCode,
				"error", res.Error,
			)
		}
		if s.history != nil {
			s.history.Record(res)
		}
	}()

	return s.run(ctx, req)
}

func (s *Scraper) run(ctx context.Context, req *models.ScrapeRequest) *models.ScrapeResult {
	if req == nil {
		return models.NewFailure("", models.NewScrapeError(models.ErrCodeInvalidInput, "request is required", nil))
	}

	target, err := ValidateURL(req.URL)
	if err != nil {
		return models.NewFailure(req.URL, err)
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		return models.NewFailure(req.URL, err)
	}
	if req.CSSSelector != "" {
		if err := extractor.ValidateSelector(req.CSSSelector); err != nil {
			return models.NewFailure(req.URL, models.NewScrapeError(
				models.ErrCodeInvalidInput, fmt.Sprintf("invalid css selector %q", req.CSSSelector), err))
		}
	}

	if s.robots != nil && !s.robots.Allowed(ctx, target) {
		return models.NewFailure(req.URL, models.NewScrapeError(
			models.ErrCodeRobotsDisallowed, "fetch disallowed by robots.txt", nil))
	}

	useCache := s.cache != nil && req.MaxAge > 0
	var cacheKey string
	if useCache {
		cacheKey = cache.Key(target, mode, req.CSSSelector, req.ExcludeSelectors)
		if cached, hit := s.cache.Get(cacheKey, time.Duration(req.MaxAge)*time.Millisecond); hit {
			cached.URL = req.URL
			cached.CacheStatus = "hit"
			cached.Timing = models.TimingInfo{}
			return cached
		}
	}

	fetchStart := time.Now()
	sel, err := s.selector.Fetch(ctx, &engine.FetchRequest{
		URL:     target,
		Headers: req.Headers,
		Stealth: req.Stealth,
	}, mode)
	fetchMs := time.Since(fetchStart).Milliseconds()
	if err != nil {
		res := models.NewFailure(req.URL, err)
		res.Timing.FetchMs = fetchMs
		return res
	}

	base := sel.Result.FinalURL
	if base == "" {
		base = target
	}

	extractStart := time.Now()
	ext := s.extractor.Extract(sel.Result.HTML, base, extractor.Options{
		CSSSelector:      req.CSSSelector,
		ExcludeSelectors: req.ExcludeSelectors,
	})
	extractMs := time.Since(extractStart).Milliseconds()

	if ext.Structure.Title == "" {
		ext.Structure.Title = sel.Result.Title
	}

	res := &models.ScrapeResult{
		Success:          true,
		Method:           sel.Method,
		URL:              req.URL,
		FinalURL:         sel.Result.FinalURL,
		StatusCode:       sel.Result.StatusCode,
		TextContent:      ext.TextContent,
		Markdown:         ext.Markdown,
		Structure:        ext.Structure,
		Links:            ext.Links,
		Images:           ext.Images,
		JSONLD:           ext.JSONLD,
		HTMLPreview:      ext.HTMLPreview,
		Escalated:        sel.Escalated,
		EscalationReason: sel.Reason,
		Timing: models.TimingInfo{
			FetchMs:   fetchMs,
			ExtractMs: extractMs,
		},
	}

	if useCache {
		s.cache.Set(cacheKey, res)
		res.CacheStatus = "miss"
	}
	return res
}

// ValidateURL checks that raw is an absolute http(s) URL with a host and
// returns it trimmed.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "invalid url", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid url %q: missing scheme (want http or https)", raw), nil)
	default:
		return "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid url %q: unsupported scheme %q", raw, u.Scheme), nil)
	}
	if u.Hostname() == "" {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid url %q: missing host", raw), nil)
	}
	return raw, nil
}

// History returns the run log, or nil when none is attached.
func (s *Scraper) History() *history.Store { return s.history }

// Stats reports the browser page pool.
func (s *Scraper) Stats() models.PoolStats { return s.selector.PoolStats() }

// Uptime is the time since the Scraper was created.
func (s *Scraper) Uptime() time.Duration { return time.Since(s.startTime) }

// Close stops the cache sweeper and closes both engines, killing the browser
// if it was launched.
func (s *Scraper) Close() error {
	slog.Info("scraper shutting down")
	if s.cache != nil {
		s.cache.Stop()
	}
	return s.selector.Close()
}
