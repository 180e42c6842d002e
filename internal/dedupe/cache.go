// Package dedupe remembers which verdict IDs the worker already indexed.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id   string
	seen time.Time
}

// Cache is a bounded set of recently classified content IDs. Entries expire
// after ttl; once capacity is reached the oldest entry is evicted.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return newCache(capacity, ttl, time.Now)
}

func newCache(capacity int, ttl time.Duration, now func() time.Time) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

// IsSeen reports whether id was marked inside the ttl window. It does not mark id.
func (c *Cache) IsSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return false
	}
	return c.now().Sub(el.Value.(entry).seen) <= c.ttl
}

// MarkSeen records that id has been indexed, refreshing its ttl.
func (c *Cache) MarkSeen(id string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
	}
	c.items[id] = c.order.PushBack(entry{id: id, seen: now})
	c.compact(now)
}

// Len returns the number of tracked IDs, expired ones included until the next MarkSeen.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		e := front.Value.(entry)
		if c.order.Len() <= c.capacity && !e.seen.Before(cutoff) {
			return
		}
		c.order.Remove(front)
		delete(c.items, e.id)
	}
}
