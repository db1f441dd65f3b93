package adapters

import (
	"container/list"
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// LRUCache is a bounded cache with per-entry TTL. It backs grounding URL
// resolution so repeated redirects are followed once.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front is most recently used
	now      func() time.Time
}

type cacheEntry struct {
	key     string
	value   []byte
	expires time.Time // zero means no expiry
}

// NewLRUCache creates a new LRU cache with the specified capacity.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value from the cache.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}

	c.order.MoveToFront(el)
	return entry.value, true
}

// Set stores a value. ttlSeconds <= 0 keeps the entry until evicted.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttlSeconds > 0 {
		expires = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	}

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expires = expires
		c.order.MoveToFront(el)
		return nil
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: value, expires: expires})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	return nil
}

// Delete removes a key from the cache.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
	return nil
}

// Len reports the number of live and not yet purged entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

var _ ports.Cache = (*LRUCache)(nil)
