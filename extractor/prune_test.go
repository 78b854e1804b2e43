package extractor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintWeight(t *testing.T) {
	tests := []struct {
		attrs string
		want  float64
	}{
		{"post-content ", 3},
		{"site-nav menu", -3},
		{"ad-slot", -3},
		{"header-image", -3},
		{"shadow loaded", 0},
		{"article sidebar", 0},
		{" ", 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, hintWeight(tc.attrs), tc.attrs)
	}
}

func TestPruneBlocks(t *testing.T) {
	markup := `<html><body>
<nav class="menu"><a href="/">Home</a><a href="/a">A</a><a href="/b">B</a></nav>
<div class="post-content"><p>` + strings.Repeat("Real article text that readers came for. ", 8) + `</p></div>
<div id="sidebar"><a href="/x">Related link one</a><a href="/y">Related link two</a></div>
<footer>© 2026</footer>
</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)

	kept := pruneBlocks(doc.Find("body"))
	require.Equal(t, 1, kept.Length())
	assert.True(t, kept.HasClass("post-content"))
}

func TestMeasureBlock_LinkDensity(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div><a href="/">all link</a></div>`))
	require.NoError(t, err)
	sig := measureBlock(doc.Find("div"))
	assert.Equal(t, 1.0, sig.linkDensity)
	assert.Equal(t, len("all link"), sig.textLen)
}
