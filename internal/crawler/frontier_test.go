package crawler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierIsFIFOAndDeduplicates(t *testing.T) {
	t.Parallel()

	f := newFrontier(FrontierEntry{URL: "https://shop.example", Depth: 0})
	assert.True(t, f.push(FrontierEntry{URL: "https://shop.example/category/a", Depth: 1}))
	assert.True(t, f.push(FrontierEntry{URL: "https://shop.example/category/b", Depth: 1}))
	assert.False(t, f.push(FrontierEntry{URL: "https://shop.example/category/a", Depth: 2}))
	assert.False(t, f.push(FrontierEntry{URL: "https://shop.example", Depth: 1}))
	assert.Equal(t, 3, f.len())

	var got []string
	for f.len() > 0 {
		e, ok := f.pop()
		require.True(t, ok)
		got = append(got, e.URL)
	}
	assert.Equal(t, []string{
		"https://shop.example",
		"https://shop.example/category/a",
		"https://shop.example/category/b",
	}, got)

	_, ok := f.pop()
	assert.False(t, ok)
}

func TestFrontierCompactsWithoutLosingOrder(t *testing.T) {
	t.Parallel()

	f := newFrontier(FrontierEntry{URL: "seed"})
	for i := 0; i < 200; i++ {
		f.push(FrontierEntry{URL: fmt.Sprintf("u%d", i), Depth: 1})
	}
	e, _ := f.pop()
	assert.Equal(t, "seed", e.URL)
	for i := 0; i < 200; i++ {
		e, ok := f.pop()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("u%d", i), e.URL)
	}
	assert.Zero(t, f.len())
}

func TestVisitedSet(t *testing.T) {
	t.Parallel()

	v := newVisitedSet()
	assert.False(t, v.MarkIfNew(""))
	assert.True(t, v.MarkIfNew("https://shop.example"))
	assert.False(t, v.MarkIfNew("https://shop.example"))
	assert.True(t, v.Has("https://shop.example"))
	assert.False(t, v.Has("https://shop.example/p/1"))

	v.MarkFailed("https://shop.example")
	v.MarkFailed("https://shop.example")
	assert.Equal(t, 1, v.Failed())
	assert.Equal(t, 1, v.Len())
	assert.False(t, v.MarkIfNew("https://shop.example"), "failed URLs stay visited")
}

func TestTimerPauseController(t *testing.T) {
	t.Parallel()

	var p timerPauseController
	require.NoError(t, p.Pause(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Pause(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, p.Pause(ctx, 0), context.Canceled)
}
