// Package triecache caches upstream search-provider responses keyed by the
// raw query text. Queries are indexed character-by-character in a trie so
// the periodic cleanup can prune whole dead prefixes in one bottom-up pass.
package triecache

import (
	"strings"
	"sync"
	"time"
)

type node struct {
	children   map[rune]*node
	payload    []byte
	hasPayload bool
	insertedAt time.Time
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Cache is a TTL-bounded prefix cache. One instance per upstream provider.
// The zero value is not usable; construct with New.
//
// The empty query maps to the root node, which may carry a payload like
// any other terminal node.
type Cache struct {
	mu   sync.Mutex
	root *node
	ttl  time.Duration
	now  func() time.Time
}

// New creates a Cache whose entries expire ttl after insertion.
func New(ttl time.Duration) *Cache {
	return &Cache{root: newNode(), ttl: ttl, now: time.Now}
}

// Insert stores results at the terminal node for query, overwriting any
// prior payload. The query is lower-cased so lookups are case-insensitive.
func (c *Cache) Insert(query string, results []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.root
	for _, r := range strings.ToLower(query) {
		next, ok := cur.children[r]
		if !ok {
			next = newNode()
			cur.children[r] = next
		}
		cur = next
	}
	cur.payload = results
	cur.hasPayload = true
	cur.insertedAt = c.now()
}

// Search returns the cached results for query, or (nil, false) if the path
// is missing, the node carries no payload, or the payload has expired.
// Expired payloads are cleared on the spot.
func (c *Cache) Search(query string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.root
	for _, r := range strings.ToLower(query) {
		next, ok := cur.children[r]
		if !ok {
			return nil, false
		}
		cur = next
	}
	if !cur.hasPayload {
		return nil, false
	}
	if c.now().Sub(cur.insertedAt) > c.ttl {
		cur.payload = nil
		cur.hasPayload = false
		return nil, false
	}
	return cur.payload, true
}

// Cleanup drops every expired payload and prunes nodes left with neither a
// payload nor children, bottom-up. Runs on a fixed interval from the cron
// scheduler, decoupled from request handling.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupNode(c.root)
}

// cleanupNode reports whether n is prunable after the pass. Recursion depth
// is bounded by query length.
func (c *Cache) cleanupNode(n *node) bool {
	if n.hasPayload && c.now().Sub(n.insertedAt) > c.ttl {
		n.payload = nil
		n.hasPayload = false
	}
	for r, child := range n.children {
		if c.cleanupNode(child) {
			delete(n.children, r)
		}
	}
	return !n.hasPayload && len(n.children) == 0
}

// Len counts nodes currently holding a live payload.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLive(c.root)
}

func (c *Cache) countLive(n *node) int {
	total := 0
	if n.hasPayload && c.now().Sub(n.insertedAt) <= c.ttl {
		total++
	}
	for _, child := range n.children {
		total += c.countLive(child)
	}
	return total
}
