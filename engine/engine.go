package engine

import (
	"context"
	"time"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier reported as the result method
	// ("static" or "dynamic").
	Name() string

	// Fetch retrieves the page markup for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)

	// Close releases any resources held by the engine.
	Close() error
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string

	// Timeout overrides the engine's own deadline when positive.
	Timeout time.Duration

	// Stealth enables anti-bot-detection evasions (dynamic only).
	Stealth bool
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML        string
	Title       string
	StatusCode  int
	FinalURL    string
	ContentType string
	EngineName  string
	Duration    time.Duration
}

// withTimeout derives the per-fetch context. Each engine enforces its own
// deadline on top of whatever the caller supplied.
func withTimeout(ctx context.Context, req *FetchRequest, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := fallback
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
