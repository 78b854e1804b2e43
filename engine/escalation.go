package engine

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/use-agent/scrapepal/config"
)

// EscalationPolicy decides whether statically fetched markup is a
// client-rendered shell that needs a browser. It is best-effort.
type EscalationPolicy struct {
	// MinTextLength is the visible-text length below which a page is
	// considered empty.
	MinTextLength int

	// ShellTextLength bounds the visible text of a page that has an empty
	// framework root element.
	ShellTextLength int

	// ScriptHeavyCount and ScriptHeavyTextLength flag pages with many
	// scripts and little text.
	ScriptHeavyCount      int
	ScriptHeavyTextLength int
}

// DefaultEscalationPolicy returns the built-in thresholds.
func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{
		MinTextLength:         200,
		ShellTextLength:       1000,
		ScriptHeavyCount:      10,
		ScriptHeavyTextLength: 500,
	}
}

// NewEscalationPolicy builds a policy from config, keeping defaults for
// non-positive values.
func NewEscalationPolicy(cfg config.EscalationConfig) EscalationPolicy {
	p := DefaultEscalationPolicy()
	if cfg.MinTextLength > 0 {
		p.MinTextLength = cfg.MinTextLength
	}
	if cfg.ShellTextLength > 0 {
		p.ShellTextLength = cfg.ShellTextLength
	}
	if cfg.ScriptHeavyCount > 0 {
		p.ScriptHeavyCount = cfg.ScriptHeavyCount
	}
	if cfg.ScriptHeavyTextLength > 0 {
		p.ScriptHeavyTextLength = cfg.ScriptHeavyTextLength
	}
	return p
}

// spaRootPattern matches empty mount points used by common frontend
// frameworks, wherever the id sits among the attributes.
var spaRootPattern = regexp.MustCompile(
	`(?i)<div\b[^>]*?\sid=["'](?:root|app|__next|__nuxt|svelte)["'][^>]*>\s*</div>|<app-root\b[^>]*>\s*</app-root>`,
)

// enableJSPattern matches a request to turn JavaScript on. It is only applied
// to the text of a single <noscript> element.
var enableJSPattern = regexp.MustCompile(`(?i)(?:enable|requires?)\s+javascript`)

// pageScan is what one tokenizer pass over the markup learns.
type pageScan struct {
	textLen      int  // visible text, whitespace collapsed
	scriptCount  int  // <script> elements
	noscriptAsks bool // some <noscript> asks to enable JavaScript
}

// Evaluate reports whether markup should be re-fetched with a browser and,
// if so, why.
func (p EscalationPolicy) Evaluate(markup string) (bool, string) {
	scan := scanVisibleText(markup)
	textLen := scan.textLen

	if textLen < p.MinTextLength {
		return true, fmt.Sprintf("visible text too short (%d < %d chars)", textLen, p.MinTextLength)
	}
	if spaRootPattern.MatchString(markup) && textLen < p.ShellTextLength {
		return true, "empty client-side framework root"
	}
	if scan.noscriptAsks && textLen < p.ShellTextLength {
		return true, "noscript asks to enable JavaScript"
	}
	if scan.scriptCount > p.ScriptHeavyCount && textLen < p.ScriptHeavyTextLength {
		return true, fmt.Sprintf("script-heavy page (%d scripts, %d chars)", scan.scriptCount, textLen)
	}
	return false, ""
}

// scanVisibleText tokenizes markup and measures the visible text (outside
// script/style/noscript/template), counts <script> elements and checks each
// <noscript> body on its own for an enable-JavaScript notice.
func scanVisibleText(markup string) pageScan {
	var scan pageScan
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	skipDepth := 0
	inNoscript := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return scan
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script":
				scan.scriptCount++
				skipDepth++
			case "noscript":
				inNoscript = true
				skipDepth++
			case "style", "template":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "template":
				if string(tn) == "noscript" {
					inNoscript = false
				}
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			text := tokenizer.Text()
			if inNoscript && enableJSPattern.Match(text) {
				scan.noscriptAsks = true
			}
			if skipDepth == 0 {
				scan.textLen += len(strings.Join(strings.Fields(string(text)), " "))
			}
		}
	}
}
