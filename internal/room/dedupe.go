// ABOUTME: TTL cache of delivered message IDs for at-least-once delivery
// ABOUTME: SSE connections use it to suppress replay/live duplicates

package room

import (
	"container/list"
	"sync"
	"time"
)

// seenEntry stores the timestamp and list element for a cached message ID.
type seenEntry struct {
	timestamp time.Time
	element   *list.Element
}

// SeenCache is a thread-safe, TTL-based, size-limited record of message IDs
// already delivered on a connection. Delivery is at-least-once: history
// replay and the live feed can both carry the same message, and the cache
// lets a connection send each ID exactly once. A doubly-linked list keeps
// insertion order for O(1) eviction.
type SeenCache struct {
	mu      sync.Mutex
	seen    map[string]*seenEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
}

// NewSeenCache creates a cache with the given TTL and maximum size.
// Unlike a long-lived process cache there is no background cleanup:
// a SeenCache lives for one connection and expired entries are either
// evicted by capacity pressure or discarded with the cache itself.
func NewSeenCache(ttl time.Duration, maxSize int) *SeenCache {
	return &SeenCache{
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// CheckAndMark atomically checks whether a message ID was already delivered
// and marks it if not. Returns true for a duplicate, false if the ID is new
// and now recorded.
func (c *SeenCache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[id]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	now := time.Now()
	if entry, exists := c.seen[id]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(id)
	c.seen[id] = &seenEntry{timestamp: now, element: elem}
	return false
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *SeenCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

// Len returns the number of recorded IDs.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
