package models

import (
	"time"
	"unicode/utf8"
)

// DefaultSummaryBudget is the character budget handed to a summarizer.
const DefaultSummaryBudget = 15000

// historyPreviewRunes is the length of HistoryEntry.DataPreview.
const historyPreviewRunes = 100

// ScrapeResult is the envelope returned for every run. It is built once and
// never modified afterwards.
type ScrapeResult struct {
	// Success indicates whether the scrape completed without errors.
	Success bool `json:"success"`

	// Method is "static" or "dynamic". Empty when the run failed before fetching.
	Method string `json:"method,omitempty"`

	// URL is the URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP status of the fetched page (0 when unknown).
	StatusCode int `json:"status_code,omitempty"`

	TextContent string     `json:"text_content"`
	Markdown    string     `json:"markdown,omitempty"`
	Structure   *Structure `json:"structure,omitempty"`
	Links       []Link     `json:"links"`
	Images      []Image    `json:"images"`
	JSONLD      []JSONLD   `json:"json_ld"`
	HTMLPreview string     `json:"html_preview"`

	// Escalated is true when an auto run moved from static to dynamic.
	Escalated        bool   `json:"escalated,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`

	// CacheStatus is "hit", "miss" or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// JSONLD is one decoded application/ld+json object.
type JSONLD = map[string]any

// Link represents a hyperlink extracted from the page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Image represents an image element extracted from the page.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Heading is an h1-h6 element in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// OGMetadata contains Open Graph protocol meta tags.
type OGMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Structure is the page-level outline extracted from the markup.
type Structure struct {
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Language       string     `json:"language,omitempty"`
	Canonical      string     `json:"canonical,omitempty"`
	Headings       []Heading  `json:"headings"`
	ParagraphCount int        `json:"paragraph_count"`
	WordCount      int        `json:"word_count"`
	TokenEstimate  int        `json:"token_estimate"`
	OpenGraph      OGMetadata `json:"open_graph"`
	DOMFingerprint string     `json:"dom_fingerprint,omitempty"`

	// ContentFingerprint is the SimHash of the visible body text.
	ContentFingerprint string `json:"content_fingerprint,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	TotalMs   int64 `json:"total_ms"`
	FetchMs   int64 `json:"fetch_ms"`
	ExtractMs int64 `json:"extract_ms"`
}

// NewFailure builds the failure envelope for url. Content fields are empty
// but present so consumers never see null lists.
func NewFailure(url string, err error) *ScrapeResult {
	return &ScrapeResult{
		Success:   false,
		URL:       url,
		Links:     []Link{},
		Images:    []Image{},
		JSONLD:    []JSONLD{},
		Error:     HumanError(err),
		ErrorCode: CodeOf(err),
	}
}

// SummaryInput returns the text content truncated to budget runes.
// A non-positive budget selects DefaultSummaryBudget.
func (r *ScrapeResult) SummaryInput(budget int) string {
	if budget <= 0 {
		budget = DefaultSummaryBudget
	}
	return TruncateRunes(r.TextContent, budget)
}

// HistoryEntry is one row of the scrape log.
type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	URL         string    `json:"url"`
	Status      string    `json:"status"` // "success" or "failed"
	Method      string    `json:"method,omitempty"`
	DataPreview string    `json:"data_preview,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// HistoryEntry flattens the result into a log row stamped with now.
func (r *ScrapeResult) HistoryEntry(now time.Time) HistoryEntry {
	if !r.Success {
		return HistoryEntry{
			Timestamp: now,
			URL:       r.URL,
			Status:    "failed",
			Method:    r.Method,
			Error:     r.Error,
		}
	}
	return HistoryEntry{
		Timestamp:   now,
		URL:         r.URL,
		Status:      "success",
		Method:      r.Method,
		DataPreview: TruncateRunes(r.TextContent, historyPreviewRunes),
	}
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
