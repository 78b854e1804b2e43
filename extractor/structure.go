package extractor

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/simhash"
)

// buildStructure outlines the whole document. markup is the original input,
// used for the DOM fingerprint.
func buildStructure(doc *goquery.Document, markup string, base *url.URL) *models.Structure {
	og := extractOpenGraph(doc)
	bodyText := visibleText(doc.Find("body"))

	st := &models.Structure{
		Title:          collapseSpace(doc.Find("head title").First().Text()),
		Description:    metaContent(doc, "description"),
		Language:       strings.TrimSpace(doc.Find("html").AttrOr("lang", "")),
		Headings:       extractHeadings(doc),
		ParagraphCount: countParagraphs(doc),
		WordCount:      len(strings.Fields(bodyText)),
		TokenEstimate:  EstimateTokens(bodyText),
		OpenGraph:      og,
	}

	if st.Title == "" {
		st.Title = collapseSpace(doc.Find("title").First().Text())
	}
	if st.Title == "" {
		st.Title = og.Title
	}
	if st.Title == "" && len(st.Headings) > 0 {
		st.Title = st.Headings[0].Text
	}
	if st.Description == "" {
		st.Description = og.Description
	}
	if href := doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""); href != "" {
		if resolved, ok := resolveHTTP(base, href); ok {
			st.Canonical = resolved.String()
		}
	}
	st.DOMFingerprint = simhash.Hex(simhash.Markup(markup))
	st.ContentFingerprint = simhash.Hex(simhash.Text(bodyText))
	return st
}

// extractHeadings returns non-empty h1–h6 elements in document order.
func extractHeadings(doc *goquery.Document) []models.Heading {
	headings := []models.Heading{}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		text := collapseSpace(h.Text())
		if text == "" {
			return
		}
		name := goquery.NodeName(h)
		level := 0
		if len(name) == 2 {
			level = int(name[1] - '0')
		}
		headings = append(headings, models.Heading{Level: level, Text: text})
	})
	return headings
}

func countParagraphs(doc *goquery.Document) int {
	n := 0
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if strings.TrimSpace(p.Text()) != "" {
			n++
		}
	})
	return n
}

// metaContent returns the content of <meta name=name>, case-insensitively.
func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if strings.EqualFold(m.AttrOr("name", ""), name) {
			content = strings.TrimSpace(m.AttrOr("content", ""))
			return content == ""
		}
		return true
	})
	return content
}

// extractOpenGraph parses og:* meta tags; the first non-empty value wins.
func extractOpenGraph(doc *goquery.Document) models.OGMetadata {
	og := models.OGMetadata{}
	doc.Find("meta[property]").Each(func(_ int, m *goquery.Selection) {
		content := strings.TrimSpace(m.AttrOr("content", ""))
		if content == "" {
			return
		}
		var field *string
		switch strings.ToLower(m.AttrOr("property", "")) {
		case "og:title":
			field = &og.Title
		case "og:description":
			field = &og.Description
		case "og:image":
			field = &og.Image
		case "og:type":
			field = &og.Type
		default:
			return
		}
		if *field == "" {
			*field = content
		}
	})
	return og
}

// htmlPreview returns the body markup cut to at most limit bytes without
// splitting a UTF-8 sequence.
func htmlPreview(doc *goquery.Document, limit int) string {
	body := doc.Find("body")
	var preview string
	if body.Length() > 0 {
		preview, _ = goquery.OuterHtml(body)
	} else {
		preview, _ = doc.Html()
	}
	return truncateBytes(preview, limit)
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
