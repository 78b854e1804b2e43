package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsTTL is how long a fetched robots.txt is trusted.
const robotsTTL = time.Hour

type robotsEntry struct {
	data    *robotstxt.RobotsData
	fetched time.Time
}

// RobotsGuard answers whether a URL may be fetched under the site's
// robots.txt. Lookups fail open: an unreachable or unparsable robots.txt
// allows everything.
type RobotsGuard struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]robotsEntry
	now   func() time.Time
}

// NewRobotsGuard creates a guard that matches rules against userAgent.
func NewRobotsGuard(userAgent string, timeout time.Duration) *RobotsGuard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RobotsGuard{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		hosts:     make(map[string]robotsEntry),
		now:       time.Now,
	}
}

// Allowed reports whether rawURL may be fetched.
func (g *RobotsGuard) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	data, err := g.robotsFor(ctx, u)
	if err != nil {
		slog.Debug("robots.txt unavailable, allowing", "host", u.Host, "error", err)
		return true
	}

	group := data.FindGroup(g.userAgent)
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (g *RobotsGuard) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	if e, ok := g.hosts[key]; ok && g.now().Sub(e.fetched) < robotsTTL {
		g.mu.Unlock()
		return e.data, nil
	}
	g.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	g.mu.Lock()
	g.hosts[key] = robotsEntry{data: data, fetched: g.now()}
	g.mu.Unlock()
	return data, nil
}
