package extractor

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/scrapepal/models"
)

// extractJSONLD decodes every application/ld+json script in the document.
// Objects are appended as-is, arrays are flattened one level and anything
// that does not decode to objects is skipped.
func extractJSONLD(doc *goquery.Document) []models.JSONLD {
	blocks := []models.JSONLD{}
	doc.Find("script[type]").Each(func(_ int, s *goquery.Selection) {
		if !isJSONLDType(s.AttrOr("type", "")) {
			return
		}
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return
		}
		switch v := payload.(type) {
		case map[string]any:
			blocks = append(blocks, v)
		case []any:
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					blocks = append(blocks, obj)
				}
			}
		}
	})
	return blocks
}

// isJSONLDType matches "application/ld+json" ignoring case and parameters.
func isJSONLDType(t string) bool {
	mediaType, _, _ := strings.Cut(t, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/ld+json")
}
