// Package pricecache implements the oracle, route and sequencer caches of
// SPEC_FULL.md §4.4: single-flight-guarded, TTL-bound, and — for the oracle
// cache specifically — never evicting a previously successful value just
// because the latest refresh failed. golang.org/x/sync/singleflight collapses
// concurrent callers for the same key onto one upstream RPC read, the same
// de-duplication idiom the teacher's AMM state reads would benefit from
// under concurrent strategy evaluation (blackhole.go's GetAMMState was
// called from multiple goroutines with no such guard).
package pricecache

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// entry is one cached value alongside when it was stored and whether that
// store was a success or a failure.
type entry struct {
	value    interface{}
	err      error
	storedAt time.Time
	success  bool
}

// Cache is a generic, single-flight-guarded TTL cache with asymmetric
// success/failure TTLs and sticky last-good values.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	successTTL time.Duration
	failureTTL time.Duration

	log *zap.Logger

	// stickyOnError, when true, means a failed refresh keeps serving the
	// last successful value (with a warning) instead of propagating the
	// error — this is the oracle cache's "never evict on error" rule.
	stickyOnError bool

	nowFunc func() time.Time
}

// New builds a Cache. Set stickyOnError true for the oracle cache.
func New(successTTL, failureTTL time.Duration, stickyOnError bool, log *zap.Logger) *Cache {
	return &Cache{
		entries:       make(map[string]entry),
		successTTL:    successTTL,
		failureTTL:    failureTTL,
		stickyOnError: stickyOnError,
		log:           log,
		nowFunc:       time.Now,
	}
}

// Fetcher is the upstream read a Get falls back to on a cache miss or
// expiry. A non-nil error marks the result as a failure for TTL purposes.
type Fetcher func() (interface{}, error)

// Get returns the cached value for key if fresh, otherwise calls fetch
// (single-flighted across concurrent callers) to refresh it. A cached
// failure within its own (shorter) TTL short-circuits to the cached error
// without re-invoking fetch, so a downed provider isn't hammered every call.
func (c *Cache) Get(key string, fetch Fetcher) (interface{}, bool, error) {
	if v, hit, cachedErr, ok := c.fresh(key); ok {
		return v, hit, cachedErr
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, ferr := fetch()
		now := c.nowFunc()

		if ferr != nil {
			if c.stickyOnError {
				if prev, hadPrev := c.peek(key); hadPrev && prev.success {
					c.log.Warn("pricecache: refresh failed, serving last good value",
						zap.String("key", key), zap.Error(ferr))
					c.store(key, prev.value, nil, now, true)
					return prev.value, nil
				}
			}
			c.store(key, nil, ferr, now, false)
			return nil, ferr
		}

		c.store(key, v, nil, now, true)
		return v, nil
	})

	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// fresh returns (value, wasCacheHit, cachedErr, entryIsUsable). entryIsUsable
// is true whenever a live, unexpired entry exists — whether it was a
// success (serve value) or a failure (serve the cached error, no re-fetch).
func (c *Cache) fresh(key string) (interface{}, bool, error, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil, false
	}

	ttl := c.failureTTL
	if e.success {
		ttl = c.successTTL
	}
	if c.nowFunc().Sub(e.storedAt) > ttl {
		return nil, false, nil, false
	}
	if !e.success {
		return nil, false, e.err, true
	}
	return e.value, true, nil, true
}

func (c *Cache) peek(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) store(key string, value interface{}, err error, at time.Time, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, err: err, storedAt: at, success: success}
}

// Invalidate drops a key's cached value immediately, used when a watcher
// observes an on-chain event (e.g. AnswerUpdated) that stale-dates it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
