package extractor

import (
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Class and id hints are matched as whole tokens so that "ad" does not hit
// "header" or "shadow".
var (
	contentHintRe     = regexp.MustCompile(`(?i)(^|[\s_-])(content|article|post|entry|body|main|text|story)([\s_-]|$)`)
	boilerplateHintRe = regexp.MustCompile(`(?i)(^|[\s_-])(sidebar|ads?|advert|widget|nav|navbar|menu|comments?|footer|header|banner|popup|modal|cookie|social|share|related|recommend|promo)([\s_-]|$)`)
)

// blockSignals are the measurements a block is scored on.
type blockSignals struct {
	textLen     int
	textDensity float64 // text bytes per markup byte
	linkDensity float64 // link text bytes per text byte
	tag         float64
	hints       float64
}

func (s blockSignals) score() float64 {
	return 3.0*s.textDensity -
		2.0*s.linkDensity +
		1.5*s.tag +
		s.hints +
		0.5*math.Log10(float64(s.textLen)+1)
}

// pruneBlocks keeps the direct children of body that score as main content
// rather than boilerplate. The result may be empty.
func pruneBlocks(body *goquery.Selection) *goquery.Selection {
	return body.Children().FilterFunction(func(_ int, el *goquery.Selection) bool {
		return measureBlock(el).score() > 0
	})
}

func measureBlock(el *goquery.Selection) blockSignals {
	markup, err := goquery.OuterHtml(el)
	if err != nil || markup == "" {
		return blockSignals{tag: -1}
	}

	text := strings.TrimSpace(el.Text())
	sig := blockSignals{
		textLen:     len(text),
		textDensity: float64(len(text)) / float64(len(markup)),
		tag:         tagWeight(goquery.NodeName(el)),
		hints:       hintWeight(el.AttrOr("class", "") + " " + el.AttrOr("id", "")),
	}

	if sig.textLen > 0 {
		linkText := 0
		el.Find("a").Each(func(_ int, a *goquery.Selection) {
			linkText += len(strings.TrimSpace(a.Text()))
		})
		sig.linkDensity = float64(linkText) / float64(sig.textLen)
	}
	return sig
}

func tagWeight(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5
	case "nav", "footer", "aside", "header", "form":
		return -5
	case "script", "style", "noscript", "template":
		return -10
	}
	return 0
}

// hintWeight adds 3 for a content hint and subtracts 3 for a boilerplate
// hint in the class and id attributes.
func hintWeight(attrs string) float64 {
	w := 0.0
	if contentHintRe.MatchString(attrs) {
		w += 3
	}
	if boilerplateHintRe.MatchString(attrs) {
		w -= 3
	}
	return w
}
