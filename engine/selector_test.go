package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/scrapepal/models"
)

// fakeEngine returns a canned result or error and counts calls.
type fakeEngine struct {
	name  string
	html  string
	err   error
	calls atomic.Int32
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(_ context.Context, req *FetchRequest) (*FetchResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &FetchResult{HTML: f.html, StatusCode: 200, FinalURL: req.URL, EngineName: f.name}, nil
}

func (f *fakeEngine) Close() error { return nil }

var (
	richPage = "<html><body><article>" + strings.Repeat("Server rendered words. ", 40) + "</article></body></html>"
	shell    = `<html><body><div id="root"></div></body></html>`
)

func newFakes(staticHTML string, staticErr error, dynHTML string, dynErr error) (*fakeEngine, *fakeEngine) {
	return &fakeEngine{name: models.MethodStatic, html: staticHTML, err: staticErr},
		&fakeEngine{name: models.MethodDynamic, html: dynHTML, err: dynErr}
}

func TestSelector_ExplicitModes(t *testing.T) {
	static, dynamic := newFakes(shell, nil, richPage, nil)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)
	req := &FetchRequest{URL: "https://example.com"}

	sel, err := s.Fetch(context.Background(), req, models.ModeStatic)
	require.NoError(t, err)
	assert.Equal(t, models.MethodStatic, sel.Method)
	assert.False(t, sel.Escalated, "static mode never escalates, even on a shell")

	sel, err = s.Fetch(context.Background(), req, models.ModeDynamic)
	require.NoError(t, err)
	assert.Equal(t, models.MethodDynamic, sel.Method)

	assert.EqualValues(t, 1, static.calls.Load())
	assert.EqualValues(t, 1, dynamic.calls.Load())
}

func TestSelector_AutoKeepsRichStaticPage(t *testing.T) {
	static, dynamic := newFakes(richPage, nil, richPage, nil)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://example.com"}, models.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, models.MethodStatic, sel.Method)
	assert.False(t, sel.Escalated)
	assert.Zero(t, dynamic.calls.Load())
}

func TestSelector_AutoEscalatesShell(t *testing.T) {
	static, dynamic := newFakes(shell, nil, richPage, nil)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://spa.example"}, models.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, models.MethodDynamic, sel.Method)
	assert.True(t, sel.Escalated)
	assert.NotEmpty(t, sel.Reason)
	assert.Equal(t, richPage, sel.Result.HTML)
}

func TestSelector_AutoEscalatesStaticFailure(t *testing.T) {
	staticErr := models.NewScrapeError(models.ErrCodeHTTPStatus, "blocked",
		&models.HTTPStatusError{StatusCode: 403, URL: "https://example.com"})
	static, dynamic := newFakes("", staticErr, richPage, nil)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://example.com"}, models.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, models.MethodDynamic, sel.Method)
	assert.Contains(t, sel.Reason, "static fetch failed")
}

func TestSelector_AutoFallsBackToThinStatic(t *testing.T) {
	dynErr := models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", nil)
	static, dynamic := newFakes(shell, nil, "", dynErr)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://spa.example"}, models.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, models.MethodStatic, sel.Method)
	assert.False(t, sel.Escalated)
	assert.Equal(t, shell, sel.Result.HTML)
}

func TestSelector_AutoBothFailSurfacesDynamicError(t *testing.T) {
	staticErr := models.NewScrapeError(models.ErrCodeNetwork, "network error", nil)
	dynErr := models.NewScrapeError(models.ErrCodeNavigation, "navigation failed", nil)
	static, dynamic := newFakes("", staticErr, "", dynErr)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)

	_, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://example.com"}, models.ModeAuto)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNavigation, models.CodeOf(err))
}

func TestSelector_UnknownMode(t *testing.T) {
	static, dynamic := newFakes(richPage, nil, richPage, nil)
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), nil)

	_, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://example.com"}, models.Mode("turbo"))
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
	assert.Zero(t, static.calls.Load()+dynamic.calls.Load())
}

func TestSelector_DomainMemory(t *testing.T) {
	static, dynamic := newFakes(shell, nil, richPage, nil)
	mem := newDomainMemory(time.Hour, time.Now)
	defer mem.Stop()
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), mem)

	_, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://spa.example/a"}, models.ModeAuto)
	require.NoError(t, err)
	assert.EqualValues(t, 1, static.calls.Load())

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://spa.example/b"}, models.ModeAuto)
	require.NoError(t, err)
	assert.True(t, sel.Escalated)
	assert.Contains(t, sel.Reason, "domain previously needed a browser")
	assert.EqualValues(t, 1, static.calls.Load(), "remembered domain skips the static attempt")
	assert.EqualValues(t, 2, dynamic.calls.Load())
}

func TestSelector_DomainMemorySkipsUnchangedShape(t *testing.T) {
	hydrated := `<html><body><div id="root">` + strings.Repeat("Hydrated words. ", 40) + `</div></body></html>`
	static, dynamic := newFakes(shell, nil, hydrated, nil)
	mem := newDomainMemory(time.Hour, time.Now)
	defer mem.Stop()
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), mem)

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://same.example/a"}, models.ModeAuto)
	require.NoError(t, err)
	assert.True(t, sel.Escalated)

	remembered, _ := mem.NeedsBrowser("https://same.example/b")
	assert.False(t, remembered, "identical tag structure is not remembered")
}

func TestSelector_DomainMemoryForgetsOnFailure(t *testing.T) {
	static, dynamic := newFakes(richPage, nil, "", models.NewScrapeError(models.ErrCodeTimeout, "slow", nil))
	mem := newDomainMemory(time.Hour, time.Now)
	defer mem.Stop()
	mem.Remember("https://example.com", "earlier shell")
	s := NewSelector(static, dynamic, DefaultEscalationPolicy(), mem)

	sel, err := s.Fetch(context.Background(), &FetchRequest{URL: "https://example.com/x"}, models.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, models.MethodStatic, sel.Method)

	remembered, _ := mem.NeedsBrowser("https://example.com")
	assert.False(t, remembered)
	assert.EqualValues(t, 1, dynamic.calls.Load())
}
