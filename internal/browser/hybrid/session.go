// Package hybrid combines a cheap static session with a rendering one. Each
// page is fetched statically first and re-rendered only when the static HTML
// looks client-rendered.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/browser"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// rawPage is implemented by pages that expose the response they fetched.
type rawPage interface {
	StatusCode() int
	Body() []byte
}

// Session implements crawler.BrowserSession over a static and a rendering session.
type Session struct {
	static   crawler.BrowserSession
	render   crawler.BrowserSession
	detector *browser.Detector
	logger   *zap.Logger
}

// New builds a Session. The static session's pages must expose their
// response through StatusCode and Body for promotion to work.
func New(static, render crawler.BrowserSession, detector *browser.Detector, logger *zap.Logger) (*Session, error) {
	if static == nil || render == nil {
		return nil, fmt.Errorf("%w: hybrid session needs static and render sessions", crawler.ErrMissingDependency)
	}
	if detector == nil {
		detector = browser.NewDetector(0, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{static: static, render: render, detector: detector, logger: logger}, nil
}

// Setup starts both sessions, unwinding the static one if the renderer fails.
func (s *Session) Setup(ctx context.Context) error {
	if err := s.static.Setup(ctx); err != nil {
		return fmt.Errorf("static setup: %w", err)
	}
	if err := s.render.Setup(ctx); err != nil {
		if cerr := s.static.Cleanup(); cerr != nil {
			s.logger.Warn("static cleanup after render setup failure", zap.Error(cerr))
		}
		return fmt.Errorf("render setup: %w", err)
	}
	return nil
}

// CreatePage opens a static page; the rendered page is opened lazily.
func (s *Session) CreatePage(ctx context.Context) (crawler.Page, error) {
	p, err := s.static.CreatePage(ctx)
	if err != nil {
		return nil, err
	}
	return &Page{session: s, static: p}, nil
}

// Cleanup stops both sessions.
func (s *Session) Cleanup() error {
	return errors.Join(s.static.Cleanup(), s.render.Cleanup())
}

// Page navigates statically and promotes to the renderer on demand.
type Page struct {
	session  *Session
	static   crawler.Page
	rendered crawler.Page
}

// Navigate implements crawler.Page.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) crawler.NavigationResult {
	res := p.static.Navigate(ctx, url, timeout)
	if res.Outcome != crawler.NavigationOK {
		return res
	}
	raw, ok := p.static.(rawPage)
	if !ok || !p.session.detector.NeedsJS(raw.StatusCode(), raw.Body()) {
		return res
	}

	p.session.logger.Debug("promoting page to renderer", zap.String("url", url))
	if p.rendered == nil {
		rendered, err := p.session.render.CreatePage(ctx)
		if err != nil {
			return crawler.NavigationResult{Outcome: crawler.OutcomeForError(err), Err: fmt.Errorf("open render page: %w", err)}
		}
		p.rendered = rendered
	}
	return p.rendered.Navigate(ctx, url, timeout)
}

// ExtractLinks reads from the rendered page when the navigation was promoted.
func (p *Page) ExtractLinks(ctx context.Context) ([]string, error) {
	if p.rendered != nil {
		return p.rendered.ExtractLinks(ctx)
	}
	return p.static.ExtractLinks(ctx)
}

// Close closes both pages.
func (p *Page) Close() error {
	var renderErr error
	if p.rendered != nil {
		renderErr = p.rendered.Close()
	}
	return errors.Join(p.static.Close(), renderErr)
}
