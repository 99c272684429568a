// Package hotcache is the in-process tier for fully materialized reports:
// a bounded LRU with an independent TTL checked on every read.
//
// Hot content is always a subset of durable content. Plain LRU eviction
// therefore drops the in-memory copy only; TTL expiry goes through the
// OnExpire hook so the owner can invalidate the durable tiers too.
package hotcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry wraps a cached value with its creation time.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
}

// Cache is a bounded LRU+TTL cache. Safe for concurrent use: mu makes
// the expire-then-remove in Get atomic against a concurrent Put, so a
// delayed expiry can never drop a freshly stored entry.
type Cache[V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[string, Entry[V]]
	ttl time.Duration
	now func() time.Time

	// onExpire is invoked without mu held, after the entry has been
	// removed, when a read finds an entry past its TTL.
	onExpire func(key string)
}

// New creates a cache holding at most capacity entries, each readable for
// ttl after its CreatedAt.
func New[V any](capacity int, ttl time.Duration) (*Cache[V], error) {
	inner, err := lru.New[string, Entry[V]](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: inner, ttl: ttl, now: time.Now}, nil
}

// OnExpire registers the hook fired when a read expires an entry.
func (c *Cache[V]) OnExpire(fn func(key string)) { c.onExpire = fn }

// Get returns the live entry for key. An entry past its TTL is removed,
// reported as a miss, and the OnExpire hook fires so the durable copy can
// be invalidated from the read path.
func (c *Cache[V]) Get(key string) (Entry[V], bool) {
	c.mu.Lock()
	entry, ok := c.lru.Get(key)
	if !ok {
		c.mu.Unlock()
		return Entry[V]{}, false
	}
	if c.expired(entry) {
		c.lru.Remove(key)
		hook := c.onExpire
		c.mu.Unlock()
		if hook != nil {
			hook(key)
		}
		return Entry[V]{}, false
	}
	c.mu.Unlock()
	return entry, true
}

// Put stores value under key with createdAt as its TTL anchor. The least
// recently used entry is evicted once capacity is exceeded.
func (c *Cache[V]) Put(key string, value V, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, Entry[V]{Key: key, Value: value, CreatedAt: createdAt})
}

// Delete removes key without firing OnExpire.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Entries snapshots all currently live entries in LRU order (oldest
// first). Expired entries are skipped but not removed; removal is the
// sweep's job.
func (c *Cache[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.lru.Keys()
	out := make([]Entry[V], 0, len(keys))
	for _, k := range keys {
		entry, ok := c.lru.Peek(k)
		if !ok || c.expired(entry) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// ExpiredKeys lists keys whose TTL has elapsed, for the periodic sweep.
func (c *Cache[V]) ExpiredKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, k := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(k); ok && c.expired(entry) {
			out = append(out, k)
		}
	}
	return out
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int { return c.lru.Len() }

func (c *Cache[V]) expired(e Entry[V]) bool {
	return c.now().Sub(e.CreatedAt) > c.ttl
}
