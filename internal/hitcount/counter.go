// ABOUTME: Thread-safe windowed request counter with TTL cleanup and size bound.
// ABOUTME: Injected into the HTTP layer in place of a shared global counter map.

package hitcount

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Counter increments and returns the count for key in the current window.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}

// counterEntry stores the count, window start, and list element for a key.
type counterEntry struct {
	count       int64
	windowStart time.Time
	element     *list.Element
}

// MemoryCounter is an in-process Counter. Uses a doubly-linked list ordered by
// last use so the least recently used key is evicted in O(1) when full.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	order   *list.List // keys, least recently used at front
	window  time.Duration
	maxKeys int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewMemoryCounter creates a counter with the given window and key limit.
// A background goroutine periodically drops keys whose window has elapsed.
func NewMemoryCounter(window time.Duration, maxKeys int) *MemoryCounter {
	return newMemoryCounter(window, maxKeys, time.Now)
}

func newMemoryCounter(window time.Duration, maxKeys int, now func() time.Time) *MemoryCounter {
	c := &MemoryCounter{
		entries: make(map[string]*counterEntry),
		order:   list.New(),
		window:  window,
		maxKeys: maxKeys,
		now:     now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Incr implements Counter. It never fails.
func (c *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if entry, ok := c.entries[key]; ok {
		if now.Sub(entry.windowStart) >= c.window {
			entry.windowStart = now
			entry.count = 0
		}
		entry.count++
		c.order.MoveToBack(entry.element)
		return entry.count, nil
	}

	// Evict least recently used if at capacity
	if c.maxKeys > 0 && len(c.entries) >= c.maxKeys {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &counterEntry{
		count:       1,
		windowStart: now,
		element:     elem,
	}
	return 1, nil
}

// Count returns the current count for key, or 0 if its window has elapsed.
func (c *MemoryCounter) Count(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.windowStart) >= c.window {
		return 0
	}
	return entry.count
}

// Len returns the number of tracked keys.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently used key. Must be called with mu held.
func (c *MemoryCounter) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired keys.
func (c *MemoryCounter) cleanup() {
	interval := c.window
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes every key whose window has elapsed.
func (c *MemoryCounter) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.windowStart) >= c.window {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *MemoryCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
	return nil
}
