package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(40))
	assert.Equal(t, time.Second, p.Backoff(-1))
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(Config{MaxRetries: 3})
	transient := NavigationResult{Outcome: NavigationTransient, Err: errors.New("timeout")}

	assert.True(t, p.ShouldRetry(transient, 1))
	assert.True(t, p.ShouldRetry(transient, 2))
	assert.False(t, p.ShouldRetry(transient, 3), "max retries counts total attempts")
	assert.False(t, p.ShouldRetry(NavigationResult{Outcome: NavigationPermanent, StatusCode: 404}, 1))
	assert.False(t, p.ShouldRetry(NavigationResult{Outcome: NavigationOK}, 1))
	assert.False(t, p.ShouldRetry(NavigationResult{
		Outcome: NavigationTransient,
		Err:     fmt.Errorf("navigate: %w", context.DeadlineExceeded),
	}, 1))
}

func TestOutcomeForStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]NavigationOutcome{
		0:   NavigationOK,
		200: NavigationOK,
		301: NavigationOK,
		404: NavigationPermanent,
		403: NavigationPermanent,
		408: NavigationTransient,
		429: NavigationTransient,
		500: NavigationTransient,
		503: NavigationTransient,
	}
	for code, want := range cases {
		assert.Equal(t, want, OutcomeForStatus(code), "status %d", code)
	}
}

func TestOutcomeForError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NavigationOK, OutcomeForError(nil))
	assert.Equal(t, NavigationPermanent, OutcomeForError(fmt.Errorf("wrap: %w", context.Canceled)))
	assert.Equal(t, NavigationTransient, OutcomeForError(context.DeadlineExceeded))
	assert.Equal(t, NavigationTransient, OutcomeForError(errors.New("net::ERR_CONNECTION_RESET")))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	mutations := map[string]func(*Config){
		"negative depth":     func(c *Config) { c.MaxDepth = -1 },
		"zero retries":       func(c *Config) { c.MaxRetries = 0 },
		"max below base":     func(c *Config) { c.RetryMaxDelay = c.RetryBaseDelay - 1 },
		"zero batch":         func(c *Config) { c.BatchSize = 0 },
		"zero concurrency":   func(c *Config) { c.ConcurrencyLimit = 0 },
		"zero nav timeout":   func(c *Config) { c.NavigationTimeout = 0 },
		"negative page cap":  func(c *Config) { c.MaxPagesPerDomain = -1 },
		"negative crawl ttl": func(c *Config) { c.CrawlTimeout = -time.Second },
	}
	for name, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

func TestNavigationOutcomeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ok", NavigationOK.String())
	assert.Equal(t, "transient", NavigationTransient.String())
	assert.Equal(t, "permanent", NavigationPermanent.String())
	assert.Equal(t, "unknown", NavigationOutcome(9).String())
}
