// Package headless implements a browser session backed by headless Chrome via
// chromedp, for storefronts that render their catalogue client-side.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/browser"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ErrNotStarted is returned by CreatePage before Setup has run.
var ErrNotStarted = errors.New("headless session not started")

// Config controls the Chrome allocator and tab behaviour.
type Config struct {
	// MaxParallel bounds open tabs; zero means unbounded.
	MaxParallel int
	UserAgent   string
	// SettleDelay is waited after the body is ready so late scripts can
	// inject navigation.
	SettleDelay time.Duration
	ExecPath    string
	NoSandbox   bool
}

// Session implements crawler.BrowserSession with one Chrome process and one
// tab per page.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	limiter chan struct{}

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New validates cfg and returns an unstarted Session.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Session{cfg: cfg, logger: logger, limiter: limiter}, nil
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	if s.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

// Setup launches Chrome. The browser outlives ctx; Cleanup stops it.
func (s *Session) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.logger.Info("headless browser started", zap.Int("max_parallel", s.cfg.MaxParallel))
	return nil
}

// CreatePage opens a new tab, waiting for a free slot when MaxParallel is set.
func (s *Session) CreatePage(ctx context.Context) (crawler.Page, error) {
	s.mu.Lock()
	browserCtx := s.browserCtx
	s.mu.Unlock()
	if browserCtx == nil {
		return nil, ErrNotStarted
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	p := &Page{
		tabCtx:    tabCtx,
		cancel:    cancel,
		release:   s.release,
		meta:      newResponseMeta(),
		userAgent: s.cfg.UserAgent,
		settle:    s.cfg.SettleDelay,
	}
	chromedp.ListenTarget(tabCtx, p.meta.captureEvent)
	return p, nil
}

// Cleanup stops Chrome.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.browserCancel = nil
	s.allocCancel = nil
	return nil
}

func (s *Session) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

// Page is one Chrome tab.
type Page struct {
	tabCtx    context.Context
	cancel    context.CancelFunc
	release   func()
	once      sync.Once
	meta      *responseMeta
	userAgent string
	settle    time.Duration

	html     string
	finalURL string
}

// Navigate loads url in the tab and captures the rendered DOM.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) crawler.NavigationResult {
	taskCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	p.meta.reset()
	var html, location string
	actions := []chromedp.Action{
		p.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if p.settle > 0 {
		actions = append(actions, chromedp.Sleep(p.settle))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		} else if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return crawler.NavigationResult{Outcome: crawler.OutcomeForError(err), Err: fmt.Errorf("chromedp run: %w", err)}
	}

	status, finalURL := p.meta.snapshotWithFallbacks(url, location)
	p.html = html
	p.finalURL = finalURL

	outcome := crawler.OutcomeForStatus(status)
	res := crawler.NavigationResult{Outcome: outcome, StatusCode: status, FinalURL: finalURL}
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

// Close closes the tab and frees its slot. It is safe to call twice.
func (p *Page) Close() error {
	p.once.Do(func() {
		p.cancel()
		if p.release != nil {
			p.release()
		}
	})
	return nil
}

func (p *Page) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if p.userAgent != "" {
			if err := emulation.SetUserAgentOverride(p.userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta records the first document response a tab receives.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// snapshotWithFallbacks prefers the browser location over the response URL so
// client-side redirects are followed. A missing status is reported as 200.
func (m *responseMeta) snapshotWithFallbacks(requestURL, location string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case location != "" && location != "about:blank":
		url = location
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
