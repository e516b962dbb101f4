// ABOUTME: Tests for the windowed request counters.
// ABOUTME: Validates window reset, size limits, eviction, cleanup, and concurrency safety.

package hitcount

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the counter's notion of time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCounter(t *testing.T, window time.Duration, maxKeys int) (*MemoryCounter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newMemoryCounter(window, maxKeys, clock.now)
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func TestMemoryCounter_Incr(t *testing.T) {
	c, _ := newTestCounter(t, time.Minute, 100)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Incr(ctx, "/chat/get-127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := c.Incr(ctx, "/chat/post-127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemoryCounter_WindowResets(t *testing.T) {
	c, clock := newTestCounter(t, time.Minute, 100)
	ctx := context.Background()

	c.Incr(ctx, "key")
	c.Incr(ctx, "key")
	assert.Equal(t, int64(2), c.Count("key"))

	clock.advance(time.Minute)
	assert.Equal(t, int64(0), c.Count("key"))

	got, err := c.Incr(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemoryCounter_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCounter(t, time.Minute, 2)
	ctx := context.Background()

	c.Incr(ctx, "a")
	c.Incr(ctx, "b")
	c.Incr(ctx, "a") // a is now most recent
	c.Incr(ctx, "c") // evicts b

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(2), c.Count("a"))
	assert.Equal(t, int64(0), c.Count("b"))
	assert.Equal(t, int64(1), c.Count("c"))
}

func TestMemoryCounter_RunCleanup(t *testing.T) {
	c, clock := newTestCounter(t, time.Minute, 100)
	ctx := context.Background()

	c.Incr(ctx, "old")
	clock.advance(30 * time.Second)
	c.Incr(ctx, "new")
	clock.advance(45 * time.Second)

	c.runCleanup()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Count("new"))
}

func TestMemoryCounter_CloseIdempotent(t *testing.T) {
	c := NewMemoryCounter(time.Minute, 10)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	c, _ := newTestCounter(t, time.Minute, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Incr(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), c.Count("shared"))
}

func TestWindowKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	assert.Equal(t, "hitcount:k:28333333", windowKey("k", now, time.Minute))
	assert.Equal(t, windowKey("k", now, time.Minute), windowKey("k", now.Add(10*time.Second), time.Minute))
	assert.Equal(t, "hitcount:k:1700000000", windowKey("k", now, 100*time.Millisecond))
}
