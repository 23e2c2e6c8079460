// Package static implements a browser session that fetches raw HTML with
// colly. It runs no JavaScript, which makes it cheap enough to be the default
// engine for server-rendered storefronts.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/browser"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ErrNotStarted is returned by CreatePage before Setup has run.
var ErrNotStarted = errors.New("static session not started")

// DefaultMaxBodyBytes caps a single response body.
const DefaultMaxBodyBytes = 10 << 20

// Config controls the collector.
type Config struct {
	UserAgent    string
	MaxBodyBytes int
}

// Session implements crawler.BrowserSession on top of a colly collector.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	base      *colly.Collector
	transport *http.Transport
}

// New builds a Session. Setup must run before pages are created.
func New(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Session{cfg: cfg, logger: logger}
}

// Setup builds the shared collector and its pooled transport.
func (s *Session) Setup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		return nil
	}

	c := colly.NewCollector(colly.Async(false))
	if s.cfg.UserAgent != "" {
		c.UserAgent = s.cfg.UserAgent
	}
	// Retries revisit the same URL; politeness is handled upstream.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = s.cfg.MaxBodyBytes

	s.transport = newHTTPTransport()
	c.WithTransport(s.transport)
	s.base = c
	return nil
}

// CreatePage returns a page bound to a clone of the shared collector.
func (s *Session) CreatePage(context.Context) (crawler.Page, error) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base == nil {
		return nil, ErrNotStarted
	}
	return &Page{collector: base.Clone(), logger: s.logger}, nil
}

// Cleanup drops idle connections.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	s.base = nil
	s.transport = nil
	return nil
}

// Page is a single static fetch. Its response is kept for link extraction and
// for the hybrid session's rendering heuristic.
type Page struct {
	collector *colly.Collector
	logger    *zap.Logger

	status   int
	finalURL string
	body     []byte
}

type visitResult struct {
	status   int
	finalURL string
	body     []byte
	err      error
}

// Navigate performs the GET and classifies the response.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) crawler.NavigationResult {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	collector := p.collector.Clone()
	collector.Context = navCtx
	done := make(chan visitResult, 1)
	go func() {
		var res visitResult
		collector.OnResponse(func(r *colly.Response) {
			res.status = r.StatusCode
			res.finalURL = r.Request.URL.String()
			res.body = append([]byte(nil), r.Body...)
		})
		collector.OnError(func(r *colly.Response, err error) {
			res.err = err
			if r != nil && r.StatusCode != 0 {
				res.status = r.StatusCode
			}
		})
		if err := collector.Visit(url); err != nil && res.err == nil {
			res.err = err
		}
		done <- res
	}()

	var res visitResult
	select {
	case <-navCtx.Done():
		err := navCtx.Err()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return crawler.NavigationResult{Outcome: crawler.OutcomeForError(err), Err: fmt.Errorf("colly fetch: %w", err)}
	case res = <-done:
	}

	p.status = res.status
	p.finalURL = res.finalURL
	p.body = res.body
	if p.finalURL == "" {
		p.finalURL = url
	}

	if res.err != nil && res.status == 0 {
		return crawler.NavigationResult{Outcome: crawler.OutcomeForError(res.err), FinalURL: p.finalURL, Err: fmt.Errorf("colly visit: %w", res.err)}
	}
	outcome := crawler.OutcomeForStatus(res.status)
	result := crawler.NavigationResult{Outcome: outcome, StatusCode: res.status, FinalURL: p.finalURL}
	if outcome != crawler.NavigationOK {
		result.Err = fmt.Errorf("http status %d", res.status)
	}
	return result
}

// ExtractLinks parses the fetched body.
func (p *Page) ExtractLinks(context.Context) ([]string, error) {
	if p.body == nil {
		return nil, nil
	}
	return browser.ExtractAnchors(p.body, p.finalURL)
}

// StatusCode is the last response status.
func (p *Page) StatusCode() int { return p.status }

// Body is the last response body.
func (p *Page) Body() []byte { return p.body }

// Close releases the response body.
func (p *Page) Close() error {
	p.body = nil
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
