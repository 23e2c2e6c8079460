// Package governor runs batched work under a fixed concurrency ceiling.
//
// A batch that fails (or panics) is logged and contributes nothing; it never
// cancels its siblings. Result order across batches follows completion order,
// while each batch's own output order is preserved.
package governor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

// ErrInvalidConcurrency is returned by New for a non-positive ceiling.
var ErrInvalidConcurrency = errors.New("governor: concurrency limit must be positive")

// Governor holds the default ceiling for batch execution.
type Governor struct {
	limit  int
	logger *zap.Logger
}

// DefaultLimit derives the ceiling from available parallelism.
func DefaultLimit() int {
	return runtime.GOMAXPROCS(0)
}

// New validates limit and returns a Governor.
func New(limit int, logger *zap.Logger) (*Governor, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, limit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{limit: limit, logger: logger}, nil
}

// Limit returns the configured ceiling.
func (g *Governor) Limit() int {
	return g.limit
}

// Split cuts items into consecutive batches of size; the last may be shorter.
// A non-positive size yields a single batch.
func Split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// ProcessBatches splits items and runs fn over each batch with at most limit
// batches in flight. A limit <= 0 falls back to the governor's ceiling.
func ProcessBatches[T, R any](
	ctx context.Context,
	g *Governor,
	items []T,
	batchSize int,
	limit int,
	fn func(ctx context.Context, batch []T) ([]R, error),
) []R {
	if limit <= 0 {
		limit = g.limit
	}
	batches := Split(items, batchSize)
	if len(batches) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results []R
		failed  int
		eg      errgroup.Group
	)
	eg.SetLimit(limit)
	start := time.Now()

	for i, batch := range batches {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				metrics.ObserveBatch("skipped")
				g.logger.Warn("batch skipped", zap.Int("batch", i), zap.Error(err))
				return nil
			}
			metrics.IncInFlightBatches()
			out, err := runBatch(ctx, fn, batch)
			metrics.DecInFlightBatches()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				metrics.ObserveBatch("failed")
				g.logger.Warn("batch failed",
					zap.Int("batch", i),
					zap.Int("size", len(batch)),
					zap.Error(err),
				)
				return nil
			}
			metrics.ObserveBatch("succeeded")
			results = append(results, out...)
			return nil
		})
	}
	_ = eg.Wait() // batch closures never return errors

	g.logger.Debug("batches processed",
		zap.Int("batches", len(batches)),
		zap.Int("failed", failed),
		zap.Int("limit", limit),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results
}

// Run implements crawler.BatchRunner for string batches.
func (g *Governor) Run(ctx context.Context, items []string, batchSize int, limit int, fn crawler.BatchFunc) []string {
	return ProcessBatches[string, string](ctx, g, items, batchSize, limit, fn)
}

func runBatch[T, R any](
	ctx context.Context,
	fn func(ctx context.Context, batch []T) ([]R, error),
	batch []T,
) (out []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("batch panicked: %v", r)
		}
	}()
	return fn(ctx, batch)
}
