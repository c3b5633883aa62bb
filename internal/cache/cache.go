package cache

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoData is returned by producers whose upstream answered with an empty
// payload. Like any other error it is never cached.
var ErrNoData = errors.New("no data")

// Clock abstracts time so expiry can be driven by tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// expired reports whether the entry is stale at now. A ttl <= 0 never expires.
func (e entry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return !now.Before(e.storedAt.Add(e.ttl))
}

// RequestCache memoizes idempotent reads for a bounded time.
// Concurrent misses on the same key share a single producer call.
type RequestCache struct {
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
	clock   Clock
}

// New creates an empty cache. A nil clock falls back to SystemClock.
func New(clock Clock) *RequestCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RequestCache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Get returns the value cached under key if it is younger than ttl, otherwise
// it invokes producer and stores the result. Producer errors are returned to
// the caller and leave the cache untouched, so the next call retries.
func (c *RequestCache) Get(key string, ttl time.Duration, producer func() (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// another caller may have filled the entry while we waited on the group
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := producer()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{value: v, storedAt: c.clock.Now(), ttl: ttl}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (c *RequestCache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.clock.Now()) {
		return nil, false
	}
	return e.value, true
}

// Purge drops every entry.
func (c *RequestCache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch is a typed wrapper around Get.
func Fetch[T any](c *RequestCache, key string, ttl time.Duration, producer func() (T, error)) (T, error) {
	v, err := c.Get(key, ttl, func() (any, error) {
		return producer()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Key builds a cache key from an endpoint path and its query parameters.
// url.Values.Encode sorts by key, so equal parameter sets give equal keys.
func Key(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}
