// Package extractor turns fetched markup into the structured records of a
// scrape result: plain text, markdown, page structure, links, images,
// JSON-LD blocks and an HTML preview.
//
// Extraction is a pure function of its inputs. It never performs I/O and
// never panics; malformed markup yields partial or empty records.
package extractor

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/scrapepal/config"
	"github.com/use-agent/scrapepal/models"
)

// DefaultPreviewLimit is the html_preview size used when none is configured.
const DefaultPreviewLimit = 5000

// Options narrows what is extracted.
type Options struct {
	// CSSSelector scopes text, markdown, links and images to the matching
	// elements. The whole document is used when nothing matches.
	CSSSelector string

	// ExcludeSelectors removes matching elements before anything is extracted.
	ExcludeSelectors []string
}

// Extraction is the output of Extract. Slices are never nil.
type Extraction struct {
	TextContent string
	Markdown    string
	Structure   *models.Structure
	Links       []models.Link
	Images      []models.Image
	JSONLD      []models.JSONLD
	HTMLPreview string
}

func emptyExtraction() *Extraction {
	return &Extraction{
		Structure: &models.Structure{Headings: []models.Heading{}},
		Links:     []models.Link{},
		Images:    []models.Image{},
		JSONLD:    []models.JSONLD{},
	}
}

// Extractor holds the reusable markdown converter. It is safe for
// concurrent use.
type Extractor struct {
	md           *converter.Converter
	previewLimit int
}

// New creates an Extractor.
func New(cfg config.ExtractConfig) *Extractor {
	limit := cfg.PreviewLimit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	return &Extractor{
		md:           newMarkdownConverter(),
		previewLimit: limit,
	}
}

// Extract parses markup fetched from sourceURL.
//
// Order:
//  1. Remove ExcludeSelectors matches.
//  2. Whole-document records: structure, JSON-LD, HTML preview.
//  3. Scoped records: text, markdown, links, images. Without a matching
//     CSSSelector the main content is located with readability, then block
//     pruning, then the visible body text.
func (x *Extractor) Extract(markup, sourceURL string, opts Options) (ext *Extraction) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("extractor: recovered from panic, returning empty extraction",
				"url", sourceURL, "code", models.ErrCodeParse, "panic", r)
			ext = emptyExtraction()
		}
	}()

	ext = emptyExtraction()
	base := parseBase(sourceURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		slog.Warn("extractor: unparseable markup",
			"url", sourceURL, "code", models.ErrCodeParse, "error", err)
		return ext
	}

	removeExcluded(doc, opts.ExcludeSelectors)

	ext.Structure = buildStructure(doc, markup, base)
	ext.JSONLD = extractJSONLD(doc)
	ext.HTMLPreview = htmlPreview(doc, x.previewLimit)

	if scope, ok := scopeSelection(doc, opts.CSSSelector); ok {
		scopedHTML := outerHTML(scope)
		ext.TextContent = visibleText(scope)
		ext.Markdown = x.toMarkdown(scopedHTML, sourceURL)
		ext.Links = extractLinks(scope, base)
		ext.Images = extractImages(scope, base)
		return ext
	}

	main := x.mainContent(doc, base)
	ext.TextContent = main.text
	ext.Markdown = x.toMarkdown(main.html, sourceURL)
	ext.Links = extractLinks(doc.Selection, base)
	ext.Images = extractImages(doc.Selection, base)
	return ext
}

// ValidateSelector reports whether s is a usable CSS selector.
func ValidateSelector(s string) error {
	_, err := compileSelector(s)
	return err
}

// parseBase returns the URL that relative references resolve against.
// An unparseable source yields an empty URL, which leaves references as-is.
func parseBase(sourceURL string) *url.URL {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return &url.URL{}
	}
	return u
}
