package models

// ScrapeRequest is the payload for POST /api/v1/scrape and the input of
// Scraper.RunRequest.
type ScrapeRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required"`

	// Mode selects the fetch strategy: "auto" (default), "static", "dynamic".
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=auto static dynamic"`

	// CSSSelector scopes text, markdown, links and images to matching elements.
	CSSSelector string `json:"css_selector,omitempty"`

	// ExcludeSelectors removes matching elements before extraction.
	ExcludeSelectors []string `json:"exclude_selectors,omitempty"`

	// Headers are sent with the fetch (both static and dynamic).
	Headers map[string]string `json:"headers,omitempty"`

	// Stealth enables anti-bot-detection evasions for dynamic fetches.
	Stealth bool `json:"stealth,omitempty"`

	// MaxAge serves a cached result younger than this many milliseconds.
	// 0 disables the cache for this request.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives a scrape.completed event when set.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Mode == "" {
		r.Mode = string(ModeAuto)
	}
}
