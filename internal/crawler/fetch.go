package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

// errAbandoned is returned by fetch when the crawl can no longer issue
// requests: the politeness wait or a backoff pause outlives the crawl context.
var errAbandoned = errors.New("crawl abandoned")

// fetch navigates to url and extracts its outbound links, retrying transient
// failures with backoff. Each attempt waits for the domain's politeness turn
// first and uses a fresh page that is always closed. A non-nil error means the
// whole domain crawl must stop; per-URL failures are reported in the result.
func (o *Orchestrator) fetch(ctx context.Context, domain, url string) ([]string, NavigationResult, error) {
	var res NavigationResult
	for attempt := 0; attempt < o.retry.MaxAttempts; attempt++ {
		if err := o.limiter.AwaitTurn(ctx, domain); err != nil {
			return nil, res, fmt.Errorf("%w: %w", errAbandoned, err)
		}

		var links []string
		links, res = o.attempt(ctx, url)
		metrics.ObservePage(domain, res.Outcome.String())
		if res.Outcome == NavigationOK {
			return links, res, nil
		}
		if !o.retry.ShouldRetry(res, attempt+1) {
			return nil, res, nil
		}

		delay := o.retry.Backoff(attempt)
		o.logger.Debug("navigation failed, backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("status", res.StatusCode),
			zap.Duration("backoff", delay),
			zap.Error(res.Err),
		)
		if err := o.pause.Pause(ctx, delay); err != nil {
			return nil, res, fmt.Errorf("%w: %w", errAbandoned, err)
		}
	}
	return nil, res, nil
}

func (o *Orchestrator) attempt(ctx context.Context, url string) ([]string, NavigationResult) {
	page, err := o.session.CreatePage(ctx)
	if err != nil {
		return nil, NavigationResult{Outcome: OutcomeForError(err), Err: fmt.Errorf("create page: %w", err)}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			o.logger.Debug("close page", zap.String("url", url), zap.Error(cerr))
		}
	}()

	res := page.Navigate(ctx, url, o.cfg.NavigationTimeout)
	if res.Outcome != NavigationOK {
		return nil, res
	}
	links, err := page.ExtractLinks(ctx)
	if err != nil {
		return nil, NavigationResult{
			Outcome:    OutcomeForError(err),
			StatusCode: res.StatusCode,
			FinalURL:   res.FinalURL,
			Err:        fmt.Errorf("extract links: %w", err),
		}
	}
	return links, res
}
