package extractor

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// minContentLength is the shortest readability or pruning text accepted as
// the page's main content.
const minContentLength = 50

// content is the located main content of a page.
type content struct {
	text string
	html string
}

// mainContent locates the page's main content: readability first, then
// block pruning, then all visible body text.
func (x *Extractor) mainContent(doc *goquery.Document, base *url.URL) content {
	full, err := doc.Html()
	if err != nil {
		full = ""
	}

	if article, ok := readArticle(full, base); ok {
		return content{text: normalizeText(article.TextContent), html: article.Content}
	}

	body := doc.Find("body")
	if pruned := pruneBlocks(body); pruned.Length() > 0 {
		if text := visibleText(pruned); len(text) >= minContentLength {
			return content{text: text, html: outerHTML(pruned)}
		}
	}

	bodyHTML, _ := body.Html()
	return content{text: visibleText(body), html: bodyHTML}
}

// readArticle runs the Mozilla Readability algorithm. ok is false when it
// fails or finds less than minContentLength characters.
func readArticle(rawHTML string, base *url.URL) (readability.Article, bool) {
	if strings.TrimSpace(rawHTML) == "" {
		return readability.Article{}, false
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil {
		slog.Debug("readability: extraction failed", "url", base.String(), "error", err)
		return readability.Article{}, false
	}
	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		return readability.Article{}, false
	}
	return article, true
}

// invisibleTags never contribute visible text.
var invisibleTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
	"head": {}, "svg": {}, "iframe": {}, "object": {},
}

// blockTags start a new line in visible text.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "ul": {}, "ol": {}, "tr": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"section": {}, "article": {}, "header": {}, "footer": {}, "nav": {},
	"aside": {}, "main": {}, "blockquote": {}, "pre": {}, "table": {},
	"figure": {}, "figcaption": {}, "dd": {}, "dt": {}, "hr": {},
}

// visibleText renders the human-visible text of s: invisible elements are
// skipped, block elements break lines, and whitespace is collapsed.
func visibleText(s *goquery.Selection) string {
	var buf strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
			if _, skip := invisibleTags[n.Data]; skip {
				return
			}
		case html.CommentNode:
			return
		}
		_, block := blockTags[n.Data]
		if block && n.Type == html.ElementNode {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && n.Type == html.ElementNode {
			buf.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
		buf.WriteByte('\n')
	}
	return normalizeText(buf.String())
}

// normalizeText collapses runs of whitespace inside lines and drops blank lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}
