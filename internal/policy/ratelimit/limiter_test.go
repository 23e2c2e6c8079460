package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLimiter_AwaitTurnSpacesSameDomain(t *testing.T) {
	l := New(Config{Interval: 100 * time.Millisecond}, zap.NewNop())
	ctx := context.Background()

	// First call should be immediate.
	start := time.Now()
	require.NoError(t, l.AwaitTurn(ctx, "example.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// Second call waits out the interval.
	start = time.Now()
	require.NoError(t, l.AwaitTurn(ctx, "example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_NoWaitOnceIntervalElapsed(t *testing.T) {
	l := New(Config{Interval: 50 * time.Millisecond}, nil)
	ctx := context.Background()

	require.NoError(t, l.AwaitTurn(ctx, "example.com"))
	time.Sleep(70 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.AwaitTurn(ctx, "example.com"))
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestLimiter_DifferentDomains(t *testing.T) {
	l := New(Config{Interval: time.Second}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.AwaitTurn(ctx, "a.com"))

	// Domain B should not be blocked by A.
	start := time.Now()
	require.NoError(t, l.AwaitTurn(ctx, "b.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "domain B blocked unexpectedly")
}

func TestLimiter_DomainKeyIsCaseInsensitive(t *testing.T) {
	l := New(Config{Interval: 100 * time.Millisecond}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.AwaitTurn(ctx, "Shop.Example"))
	start := time.Now()
	require.NoError(t, l.AwaitTurn(ctx, "shop.example"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_ConcurrentCallersAreSerialized(t *testing.T) {
	const callers = 4
	interval := 40 * time.Millisecond
	l := New(Config{Interval: interval}, zap.NewNop())
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.AwaitTurn(ctx, "example.com"))
		}()
	}
	wg.Wait()

	// The first caller passes immediately, every other one waits a full interval.
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(callers-1)*interval-10*time.Millisecond)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(Config{Interval: time.Hour}, zap.NewNop())
	require.NoError(t, l.AwaitTurn(context.Background(), "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.AwaitTurn(ctx, "example.com")
	require.Error(t, err)
}

func TestLimiter_ZeroIntervalNeverWaits(t *testing.T) {
	l := New(Config{}, zap.NewNop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.AwaitTurn(ctx, "example.com"))
	}
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, time.Duration(0), l.Interval())
}
