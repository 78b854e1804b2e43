package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// compileSelector parses a CSS selector group ("article, main .body").
func compileSelector(s string) (cascadia.Selector, error) {
	return cascadia.Compile(s)
}

// removeExcluded deletes every element matching one of selectors.
// Invalid selectors are ignored.
func removeExcluded(doc *goquery.Document, selectors []string) {
	for _, s := range selectors {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sel, err := compileSelector(s)
		if err != nil {
			continue
		}
		doc.FindMatcher(sel).Remove()
	}
}

// scopeSelection returns the elements matching selector. ok is false when the
// selector is empty, invalid or matches nothing.
func scopeSelection(doc *goquery.Document, selector string) (*goquery.Selection, bool) {
	if strings.TrimSpace(selector) == "" {
		return nil, false
	}
	sel, err := compileSelector(selector)
	if err != nil {
		return nil, false
	}
	// Drop matches nested inside other matches so no text is counted twice.
	matches := doc.FindMatcher(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsMatcher(sel).Length() == 0
	})
	if matches.Length() == 0 {
		return nil, false
	}
	return matches, true
}

// outerHTML concatenates the outer HTML of every element in s.
func outerHTML(s *goquery.Selection) string {
	var buf strings.Builder
	s.Each(func(_ int, el *goquery.Selection) {
		if h, err := goquery.OuterHtml(el); err == nil {
			buf.WriteString(h)
		}
	})
	return buf.String()
}
