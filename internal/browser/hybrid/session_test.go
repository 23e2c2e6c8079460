package hybrid

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/browser"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

type stubSession struct {
	name      string
	setupErr  error
	body      string
	outcome   crawler.NavigationOutcome
	links     []string
	setups    int
	cleanups  int
	pages     int
	closed    int
	navigated []string
}

func (s *stubSession) Setup(context.Context) error { s.setups++; return s.setupErr }
func (s *stubSession) Cleanup() error              { s.cleanups++; return nil }
func (s *stubSession) CreatePage(context.Context) (crawler.Page, error) {
	s.pages++
	return &stubPage{s: s}, nil
}

type stubPage struct{ s *stubSession }

func (p *stubPage) Navigate(_ context.Context, url string, _ time.Duration) crawler.NavigationResult {
	p.s.navigated = append(p.s.navigated, url)
	status := 200
	if p.s.outcome == crawler.NavigationPermanent {
		status = 404
	}
	return crawler.NavigationResult{Outcome: p.s.outcome, StatusCode: status, FinalURL: url}
}
func (p *stubPage) ExtractLinks(context.Context) ([]string, error) { return p.s.links, nil }
func (p *stubPage) Close() error                                   { p.s.closed++; return nil }
func (p *stubPage) StatusCode() int                                { return 200 }
func (p *stubPage) Body() []byte                                   { return []byte(p.s.body) }

func serverRendered() string {
	return "<html><body>" + strings.Repeat(`<a href="/p/1">product</a>`, 100) + "</body></html>"
}

func TestNewRequiresBothSessions(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &stubSession{}, nil, nil)
	require.ErrorIs(t, err, crawler.ErrMissingDependency)
}

func TestServerRenderedPageStaysStatic(t *testing.T) {
	t.Parallel()

	static := &stubSession{name: "static", body: serverRendered(), links: []string{"/p/1"}}
	render := &stubSession{name: "render", links: []string{"/p/2"}}
	s, err := New(static, render, nil, nil)
	require.NoError(t, err)

	page, err := s.CreatePage(context.Background())
	require.NoError(t, err)
	res := page.Navigate(context.Background(), "https://shop.example", time.Second)
	require.Equal(t, crawler.NavigationOK, res.Outcome)

	links, err := page.ExtractLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/1"}, links)
	assert.Zero(t, render.pages)
	require.NoError(t, page.Close())
	assert.Equal(t, 1, static.closed)
}

func TestClientRenderedPageIsPromoted(t *testing.T) {
	t.Parallel()

	static := &stubSession{body: `<html><body><div id="root"></div></body></html>`, links: nil}
	render := &stubSession{links: []string{"https://shop.example/p/2"}}
	s, err := New(static, render, browser.NewDetector(0, nil), nil)
	require.NoError(t, err)

	page, err := s.CreatePage(context.Background())
	require.NoError(t, err)
	res := page.Navigate(context.Background(), "https://shop.example", time.Second)
	require.Equal(t, crawler.NavigationOK, res.Outcome)
	assert.Equal(t, []string{"https://shop.example"}, render.navigated)

	links, err := page.ExtractLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example/p/2"}, links)

	require.NoError(t, page.Close())
	assert.Equal(t, 1, static.closed)
	assert.Equal(t, 1, render.closed)
}

func TestFailedStaticNavigationIsNotPromoted(t *testing.T) {
	t.Parallel()

	static := &stubSession{outcome: crawler.NavigationPermanent}
	render := &stubSession{}
	s, err := New(static, render, nil, nil)
	require.NoError(t, err)

	page, err := s.CreatePage(context.Background())
	require.NoError(t, err)
	res := page.Navigate(context.Background(), "https://shop.example/gone", time.Second)
	assert.Equal(t, crawler.NavigationPermanent, res.Outcome)
	assert.Empty(t, render.navigated)
}

func TestSetupUnwindsOnRenderFailure(t *testing.T) {
	t.Parallel()

	static := &stubSession{}
	render := &stubSession{setupErr: errors.New("chrome missing")}
	s, err := New(static, render, nil, nil)
	require.NoError(t, err)

	require.Error(t, s.Setup(context.Background()))
	assert.Equal(t, 1, static.cleanups)

	require.NoError(t, s.Cleanup())
	assert.Equal(t, 2, static.cleanups)
	assert.Equal(t, 1, render.cleanups)
}
