// Package cache provides a process-wide TTL cache for derived results.
// Each expensive computation gets its own Cache instance (one per
// operation), keyed by the operation's argument tuple. Concurrent misses on
// the same key share a single in-flight computation, so a cold cache never
// causes duplicate upstream fetch storms.
package cache

import (
	"context"
	"sync"
	"time"

	"alloydash/internal/observability"
)

type entry[V any] struct {
	value     V
	err       error
	expiresAt time.Time
	ready     chan struct{} // closed once the fill completes
}

// Cache is a string-keyed TTL cache with in-flight request deduplication.
// Values are replaced wholesale on recompute; readers either see the old
// complete value or the new one, never a partial state. Expired entries are
// recomputed lazily on the next access, not actively evicted.
type Cache[V any] struct {
	mu      sync.Mutex
	name    string
	ttl     time.Duration
	entries map[string]*entry[V]
	now     func() time.Time
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock overrides the time source. Used in tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// WithName labels the cache's hit/miss counters with the operation name.
func WithName[V any](name string) Option[V] {
	return func(c *Cache[V]) {
		c.name = name
	}
}

// New creates a cache whose entries stay fresh for ttl after each fill.
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:    "cache",
		ttl:     ttl,
		entries: make(map[string]*entry[V]),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFill returns the cached value for key when fresh. On a miss it runs
// fill once; concurrent callers with the same key block on that single
// fill. Failed fills are not cached, so the next call retries.
func (c *Cache[V]) GetOrFill(ctx context.Context, key string, fill func(context.Context) (V, error)) (V, error) {
	var zero V

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		select {
		case <-e.ready:
			if e.err == nil && c.now().Before(e.expiresAt) {
				v := e.value
				c.mu.Unlock()
				observability.RecordCacheHit(c.name)
				return v, nil
			}
			// Expired; fall through and refill.
		default:
			// A fill is in flight; join it.
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-e.ready:
			}
			if e.err != nil {
				return zero, e.err
			}
			return e.value, nil
		}
	}

	e := &entry[V]{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	observability.RecordCacheMiss(c.name)
	v, err := fill(ctx)

	c.mu.Lock()
	e.value, e.err = v, err
	e.expiresAt = c.now().Add(c.ttl)
	close(e.ready)
	if err != nil && c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if err != nil {
		return zero, err
	}
	return v, nil
}

// Peek returns the cached value for key without filling. The second result
// reports whether a fresh value was present.
func (c *Cache[V]) Peek(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	select {
	case <-e.ready:
	default:
		return zero, false
	}
	if e.err != nil || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Invalidate drops the cached value for key, forcing the next access to
// recompute. An in-flight fill is left to finish; its result is discarded.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
