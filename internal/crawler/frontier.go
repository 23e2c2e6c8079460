package crawler

import (
	"context"
	"time"
)

// frontier is the FIFO queue driving one domain's breadth-first traversal.
// Entries are appended in non-decreasing depth order, so FIFO order is BFS order.
type frontier struct {
	queue    []FrontierEntry
	head     int
	enqueued map[string]struct{}
}

func newFrontier(seed FrontierEntry) *frontier {
	f := &frontier{enqueued: make(map[string]struct{})}
	f.push(seed)
	return f
}

// push appends entry unless its URL has already been enqueued and reports
// whether it was added.
func (f *frontier) push(entry FrontierEntry) bool {
	if _, ok := f.enqueued[entry.URL]; ok {
		return false
	}
	f.enqueued[entry.URL] = struct{}{}
	f.queue = append(f.queue, entry)
	return true
}

func (f *frontier) pop() (FrontierEntry, bool) {
	if f.head >= len(f.queue) {
		return FrontierEntry{}, false
	}
	entry := f.queue[f.head]
	f.queue[f.head] = FrontierEntry{}
	f.head++
	if f.head > 64 && f.head*2 >= len(f.queue) {
		f.queue = append([]FrontierEntry(nil), f.queue[f.head:]...)
		f.head = 0
	}
	return entry, true
}

func (f *frontier) len() int {
	return len(f.queue) - f.head
}

type visitState uint8

const (
	visitFetched visitState = iota + 1
	visitFailed
)

// visitedSet tracks the URLs one domain traversal has dequeued. Each URL is
// inserted at most once; failures are kept so the URL is never retried again
// within the same run.
type visitedSet struct {
	states map[string]visitState
	failed int
}

func newVisitedSet() *visitedSet {
	return &visitedSet{states: make(map[string]visitState)}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (v *visitedSet) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := v.states[url]; ok {
		return false
	}
	v.states[url] = visitFetched
	return true
}

// MarkFailed flags a visited URL as visited-with-failure.
func (v *visitedSet) MarkFailed(url string) {
	if v.states[url] != visitFailed {
		v.failed++
	}
	v.states[url] = visitFailed
}

func (v *visitedSet) Has(url string) bool {
	_, ok := v.states[url]
	return ok
}

func (v *visitedSet) Len() int { return len(v.states) }

func (v *visitedSet) Failed() int { return v.failed }

// pauseController abstracts how the crawler waits between retry attempts.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
