package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/scrapepal/config"
	"github.com/use-agent/scrapepal/models"
)

// ErrEngineClosed is returned by Fetch after Close.
var ErrEngineClosed = errors.New("dynamic engine closed")

// RodEngine renders pages in a headless Chromium driven by Rod. The browser
// is launched on first use and relaunched after it stops responding; tabs
// are checked out of an AdaptivePool so concurrent navigations never share
// a page.
type RodEngine struct {
	cfg     config.BrowserConfig
	poolCfg config.PoolConfig

	mu      sync.Mutex
	browser *rod.Browser
	pool    *AdaptivePool[*rod.Page]
	closed  bool
}

// NewRodEngine creates a RodEngine. No browser is started until the first Fetch.
func NewRodEngine(cfg config.BrowserConfig, poolCfg config.PoolConfig) *RodEngine {
	return &RodEngine{cfg: cfg, poolCfg: poolCfg}
}

func (e *RodEngine) Name() string { return models.MethodDynamic }

// Stats returns a snapshot of the page pool.
func (e *RodEngine) Stats() models.PoolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := models.PoolStats{
		BrowserRunning: e.browser != nil,
		MaxPages:       e.poolCfg.HardMax,
	}
	if e.pool != nil {
		stats.LivePages = e.pool.Size()
		stats.ActivePages = e.pool.ActiveCount()
	}
	return stats
}

// Close drains the page pool and kills the browser process.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.browser == nil {
		return nil
	}
	slog.Info("dynamic engine shutting down: draining page pool")
	e.pool.Stop()
	err := e.browser.Close()
	e.browser, e.pool = nil, nil
	slog.Info("dynamic engine shutdown complete")
	return err
}

// Fetch navigates a pooled tab to req.URL and returns the rendered DOM.
//
// Order matters: stealth, headers and request hijacking must be installed
// before navigation, and the network-idle waiter must be registered before
// Navigate or it misses in-flight requests. Cleanup navigates the original
// page (not the context-bound copy) to about:blank so it still works after
// the request deadline.
func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, req, e.cfg.NavigationTimeout)
	defer cancel()

	browser, pool, err := e.ensureBrowser()
	if err != nil {
		return nil, err
	}

	h, err := pool.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, categorizeError(ctx, err, "timed out waiting for a browser page")
		}
		go e.checkAlive(browser)
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire browser page", err)
	}
	page := h.Value

	success := false
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
			pool.Discard(h)
			go e.checkAlive(browser)
			return
		}
		pool.Put(h, success)
	}()

	if req.Stealth {
		remove, evalErr := page.EvalOnNewDocument(stealth.JS)
		if evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		} else {
			cleanups = append(cleanups, func() { _ = remove() })
		}
	}

	if headers := e.extraHeaders(req); len(headers) > 0 {
		if hdrErr := (proto.NetworkSetExtraHTTPHeaders{Headers: headers}).Call(page); hdrErr != nil {
			slog.Warn("failed to set extra headers", "error", hdrErr)
		} else {
			cleanups = append(cleanups, func() {
				_ = proto.NetworkSetExtraHTTPHeaders{Headers: proto.NetworkHeaders{}}.Call(page)
			})
		}
	}

	router := installHijack(page, e.cfg.BlockedResourceTypes, e.cfg.BlockAds)
	if router != nil {
		cleanups = append(cleanups, func() { _ = router.Stop() })
	}

	p := page.Context(ctx)

	var waitIdle func()
	if router == nil && waitsForNetworkIdle(e.cfg) {
		waitIdle = p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	}

	if navErr := p.Navigate(req.URL); navErr != nil {
		go e.checkAlive(browser)
		return nil, categorizeError(ctx, navErr, "navigation to target URL failed")
	}

	if loadErr := p.WaitLoad(); loadErr != nil {
		if ctx.Err() != nil {
			return nil, categorizeError(ctx, loadErr, "page load timed out")
		}
		slog.Debug("WaitLoad failed, proceeding with current DOM", "error", loadErr)
	}
	if waitIdle != nil {
		waitIdle()
	} else if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	if e.cfg.SettleDelay > 0 {
		select {
		case <-time.After(e.cfg.SettleDelay):
		case <-ctx.Done():
			return nil, categorizeError(ctx, ctx.Err(), "settle delay interrupted")
		}
	}

	// Status via the Navigation Timing API; listening for network events
	// would conflict with the hijack router.
	statusCode := 0
	if res, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = res.Value.Int()
	}
	if statusCode >= 400 {
		return nil, models.NewScrapeError(models.ErrCodeHTTPStatus,
			"target server returned an error status",
			&models.HTTPStatusError{StatusCode: statusCode, URL: req.URL})
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(ctx, htmlErr, "failed to capture rendered HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	success = true
	return &FetchResult{
		HTML:        rawHTML,
		Title:       evalStringOrEmpty(p, `() => document.title`),
		StatusCode:  statusCode,
		FinalURL:    finalURL,
		ContentType: "text/html",
		EngineName:  e.Name(),
		Duration:    time.Since(start),
	}, nil
}

// extraHeaders merges the request headers with a search-engine Referer
// for stealth fetches.
func (e *RodEngine) extraHeaders(req *FetchRequest) proto.NetworkHeaders {
	headers := make(proto.NetworkHeaders, len(req.Headers)+1)
	if req.Stealth {
		if _, ok := req.Headers["Referer"]; !ok {
			if u, err := url.Parse(req.URL); err == nil {
				headers["Referer"] = gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()))
			}
		}
	}
	for k, v := range req.Headers {
		headers[k] = gson.New(v)
	}
	return headers
}

// ensureBrowser returns the running browser and its page pool, launching
// them if needed.
func (e *RodEngine) ensureBrowser() (*rod.Browser, *AdaptivePool[*rod.Page], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "browser unavailable", ErrEngineClosed)
	}
	if e.browser != nil {
		return e.browser, e.pool, nil
	}

	browser, err := launchBrowser(e.cfg)
	if err != nil {
		return nil, nil, err
	}
	pool := NewAdaptivePool[*rod.Page](
		AdaptivePoolConfig{
			MinSize:      e.poolCfg.MinPages,
			HardMax:      e.poolCfg.HardMax,
			MemThreshold: e.poolCfg.MemThreshold,
			ScaleStep:    e.poolCfg.ScaleStep,
		},
		func() (*rod.Page, error) { return browser.Page(proto.TargetCreateTarget{}) },
		func(p *rod.Page) { _ = p.Close() },
	)
	slog.Info("page pool created", "maxPages", pool.HardMax())

	e.browser, e.pool = browser, pool
	return browser, pool, nil
}

// checkAlive probes the browser and tears it down when it no longer
// answers, so the next Fetch relaunches it.
func (e *RodEngine) checkAlive(b *rod.Browser) {
	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := (proto.BrowserGetVersion{}).Call(b.Context(probeCtx)); err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != b {
		return
	}
	slog.Warn("browser not responding, relaunching on next fetch")
	e.pool.Stop()
	_ = b.Close()
	e.browser, e.pool = nil, nil
}

func launchBrowser(cfg config.BrowserConfig) (*rod.Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	return browser, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorizeError wraps raw browser errors into typed ScrapeErrors.
func categorizeError(ctx context.Context, err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, "dynamic fetch timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

// waitsForNetworkIdle reports whether navigations wait for network idle.
// WaitRequestIdle uses the Fetch domain, which conflicts with request
// hijacking on recent Chromium, so any blocking rule turns it off.
func waitsForNetworkIdle(cfg config.BrowserConfig) bool {
	return cfg.WaitNetworkIdle && len(cfg.BlockedResourceTypes) == 0 && !cfg.BlockAds
}
