package extractor

import (
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter creates a reusable, goroutine-safe Converter. The base
// plugin drops script, style, head and comments; tables keep minimal cell
// padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// toMarkdown converts an HTML fragment to Markdown, resolving relative link
// and image URLs against sourceURL. Conversion failures yield "".
func (x *Extractor) toMarkdown(fragment, sourceURL string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	md, err := x.md.ConvertString(fragment, converter.WithDomain(sourceURL))
	if err != nil {
		slog.Debug("extractor: markdown conversion failed", "url", sourceURL, "error", err)
		return ""
	}
	return strings.TrimSpace(md)
}
