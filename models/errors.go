package models

import (
	"errors"
	"fmt"
)

// Error codes used in scrape envelopes and internal error handling.
const (
	ErrCodeNetwork            = "NETWORK_ERROR"
	ErrCodeTimeout            = "SCRAPE_TIMEOUT"
	ErrCodeHTTPStatus         = "HTTP_STATUS_ERROR"
	ErrCodeUnsupportedContent = "UNSUPPORTED_CONTENT"
	ErrCodeNavigation         = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash       = "BROWSER_CRASH"
	ErrCodeParse              = "PARSE_ERROR" // logged only; extraction degrades to empty fields
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeRobotsDisallowed   = "ROBOTS_DISALLOWED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error used by middleware responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Human returns the message shown to users, without the code prefix.
func (e *ScrapeError) Human() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// HTTPStatusError reports a non-success status returned by the target server.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// CodeOf returns the error code carried by err, or ErrCodeInternal when err
// is not a ScrapeError.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HumanError renders err as a single human-readable line.
func HumanError(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Human()
	}
	return err.Error()
}
