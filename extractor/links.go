package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/scrapepal/models"
)

// extractLinks returns a[href] targets under s resolved against base,
// http(s) only, fragment stripped, deduplicated in document order.
func extractLinks(s *goquery.Selection, base *url.URL) []models.Link {
	links := []models.Link{}
	seen := make(map[string]struct{})

	eachWithin(s, "a[href]", func(a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved, ok := resolveHTTP(base, href)
		if !ok {
			return
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, models.Link{
			URL:  abs,
			Text: collapseSpace(a.Text()),
		})
	})
	return links
}

// extractImages returns img sources under s (src, falling back to data-src)
// resolved against base. Data URIs are skipped.
func extractImages(s *goquery.Selection, base *url.URL) []models.Image {
	images := []models.Image{}
	seen := make(map[string]struct{})

	eachWithin(s, "img", func(img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			src = strings.TrimSpace(img.AttrOr("data-src", ""))
		}
		resolved, ok := resolveHTTP(base, src)
		if !ok {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		images = append(images, models.Image{
			Src: abs,
			Alt: collapseSpace(img.AttrOr("alt", "")),
		})
	})
	return images
}

// eachWithin calls fn, in document order, for every element of s or its
// descendants matching selector.
func eachWithin(s *goquery.Selection, selector string, fn func(*goquery.Selection)) {
	s.Each(func(_ int, el *goquery.Selection) {
		if el.Is(selector) {
			fn(el)
		}
		el.Find(selector).Each(func(_ int, child *goquery.Selection) {
			fn(child)
		})
	})
}

// resolveHTTP resolves ref against base and keeps only http(s) results.
func resolveHTTP(base *url.URL, ref string) (*url.URL, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return nil, false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	return resolved, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
