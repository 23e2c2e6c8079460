// Package rod implements a browser session on go-rod. It manages its own
// Chrome process and recycles it after a number of pages, since long-lived
// Chrome instances grow without bound under crawl load.
package rod

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/browser"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ErrNotStarted is returned by CreatePage before Setup has run.
var ErrNotStarted = errors.New("rod session not started")

// DefaultMaxPages is the number of pages served before Chrome is recycled.
const DefaultMaxPages = 75

// navigationStatusJS reads the main document's HTTP status from the
// Navigation Timing API. Browsers without responseStatus report 0.
const navigationStatusJS = `() => {
	const e = performance.getEntriesByType("navigation")[0];
	return e && e.responseStatus ? e.responseStatus : 0;
}`

// Config controls the launcher.
type Config struct {
	MaxPages  int64
	Bin       string
	UserAgent string
	NoSandbox bool
}

// Session implements crawler.BrowserSession with go-rod.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	served   int64
	open     int
}

// New returns an unstarted Session.
func New(cfg Config, logger *zap.Logger) *Session {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, logger: logger}
}

// Setup launches and connects to Chrome.
func (s *Session) Setup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return nil
	}
	return s.launch()
}

// launch must be called with mu held.
func (s *Session) launch() error {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Leakless(true).
		Headless(true)
	if s.cfg.Bin != "" {
		l = l.Bin(s.cfg.Bin)
	}
	if s.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connecting to browser: %w", err)
	}
	s.launcher = l
	s.browser = b
	s.served = 0
	return nil
}

// shutdown must be called with mu held.
func (s *Session) shutdown() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
	return err
}

// CreatePage opens a tab, recycling Chrome first when it has served MaxPages
// and no other tab is open. A failed relaunch keeps the old browser.
func (s *Session) CreatePage(ctx context.Context) (crawler.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil, ErrNotStarted
	}
	if s.served >= s.cfg.MaxPages && s.open == 0 {
		s.recycle()
	}

	p, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if s.cfg.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set user-agent: %w", err)
		}
	}
	s.served++
	s.open++
	return &Page{page: p, done: s.pageClosed}, nil
}

func (s *Session) recycle() {
	oldBrowser, oldLauncher := s.browser, s.launcher
	s.browser, s.launcher = nil, nil
	if err := s.launch(); err != nil {
		s.logger.Warn("browser recycle failed; keeping current instance", zap.Error(err))
		s.browser, s.launcher = oldBrowser, oldLauncher
		return
	}
	if oldBrowser != nil {
		_ = oldBrowser.Close()
	}
	if oldLauncher != nil {
		oldLauncher.Kill()
	}
	s.logger.Debug("browser recycled")
}

func (s *Session) pageClosed() {
	s.mu.Lock()
	if s.open > 0 {
		s.open--
	}
	s.mu.Unlock()
}

// Cleanup closes Chrome.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

// Page is one rod tab.
type Page struct {
	page *rod.Page
	done func()
	once sync.Once

	html     string
	finalURL string
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) crawler.NavigationResult {
	pg := p.page.Context(ctx).Timeout(timeout)
	fail := func(stage string, err error) crawler.NavigationResult {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return crawler.NavigationResult{Outcome: crawler.OutcomeForError(err), Err: fmt.Errorf("%s: %w", stage, err)}
	}

	if err := pg.Navigate(url); err != nil {
		return fail("navigate", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fail("wait load", err)
	}

	status := 0
	if obj, err := pg.Eval(navigationStatusJS); err == nil && obj != nil {
		status = obj.Value.Int()
	}
	html, err := pg.HTML()
	if err != nil {
		return fail("read html", err)
	}
	p.html = html
	p.finalURL = url
	if info, err := pg.Info(); err == nil && info.URL != "" {
		p.finalURL = info.URL
	}

	outcome := crawler.OutcomeForStatus(status)
	res := crawler.NavigationResult{Outcome: outcome, StatusCode: status, FinalURL: p.finalURL}
	if outcome != crawler.NavigationOK {
		res.Err = fmt.Errorf("http status %d", status)
	}
	return res
}

// ExtractLinks parses anchors out of the rendered DOM.
func (p *Page) ExtractLinks(context.Context) ([]string, error) {
	if p.html == "" {
		return nil, nil
	}
	return browser.ExtractAnchors([]byte(p.html), p.finalURL)
}

// Close closes the tab. It is safe to call twice.
func (p *Page) Close() error {
	var err error
	p.once.Do(func() {
		if p.page != nil {
			err = p.page.Close()
		}
		if p.done != nil {
			p.done()
		}
	})
	return err
}
