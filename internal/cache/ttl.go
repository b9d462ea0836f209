// Package cache provides a small in-process key/value store whose entries
// expire independently after their own time-to-live.
package cache

import (
	"sync"
	"time"

	"blairboard/internal/clock"
)

type entry[T any] struct {
	data      T
	fetchedAt time.Time
	ttl       time.Duration
}

// TTL maps string keys to values of type T. Expiry is lazy: a stale entry is
// removed by the Get that observes it. There is no size bound; the expected
// key set is one entry per calendar source.
type TTL[T any] struct {
	mu    sync.Mutex
	store map[string]entry[T]
	clock clock.Clock
}

// New returns an empty cache using the system clock.
func New[T any]() *TTL[T] {
	return NewWithClock[T](clock.NewSystem())
}

// NewWithClock returns an empty cache that reads time from c.
func NewWithClock[T any](c clock.Clock) *TTL[T] {
	if c == nil {
		c = clock.NewSystem()
	}
	return &TTL[T]{
		store: make(map[string]entry[T]),
		clock: c,
	}
}

// Get returns the value for key. An entry older than its TTL is evicted and
// reported as absent.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.store[key]
	if !ok {
		return zero, false
	}
	if c.clock.Now().Sub(e.fetchedAt) > e.ttl {
		delete(c.store, key)
		return zero, false
	}
	return e.data, true
}

// Set stores value under key, replacing any previous entry and stamping the
// current time.
func (c *TTL[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[key] = entry[T]{
		data:      value,
		fetchedAt: c.clock.Now(),
		ttl:       ttl,
	}
}

// Invalidate removes a single entry.
func (c *TTL[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// InvalidateAll removes every entry.
func (c *TTL[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.store)
}

// Len returns the number of stored entries, including ones that have expired
// but not yet been read.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}
