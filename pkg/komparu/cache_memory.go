package komparu

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/komparu/komparu-go/internal/constants"
)

// MemoryCache is an in-process LRU cache with expiry and a tag index. It is
// safe for concurrent use.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	items   map[string]*list.Element
	tags    map[string]map[string]struct{}
}

type memoryItem struct {
	key   string
	entry *CacheEntry
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		tags:    make(map[string]map[string]struct{}),
	}
}

// Get returns the entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return nil, ErrCacheKeyNotFound
	}

	item, _ := element.Value.(*memoryItem)
	if item.entry.Expired() {
		c.removeElement(element)

		return nil, ErrCacheEntryExpired
	}

	c.order.MoveToFront(element)

	return item.entry, nil
}

// Set stores entry under key, evicting the least recently used entry when full.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}

		c.removeElement(oldest)
	}

	c.items[key] = c.order.PushFront(&memoryItem{key: key, entry: entry})

	for _, tag := range entry.Tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}

		keys[key] = struct{}{}
	}

	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.tags = make(map[string]map[string]struct{})

	return nil
}

// Has reports whether a live entry exists for key.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}

	item, _ := element.Value.(*memoryItem)

	return !item.entry.Expired()
}

// InvalidateTag removes every entry carrying tag.
func (c *MemoryCache) InvalidateTag(ctx context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.tags[tag] {
		if element, ok := c.items[key]; ok {
			c.removeElement(element)
		}
	}

	delete(c.tags, tag)

	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for element := c.order.Front(); element != nil; {
		next := element.Next()

		item, _ := element.Value.(*memoryItem)
		if item.entry.Expired() {
			c.removeElement(element)
		}

		element = next
	}
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (c *MemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

func (c *MemoryCache) removeElement(element *list.Element) {
	item, _ := element.Value.(*memoryItem)

	c.order.Remove(element)
	delete(c.items, item.key)

	for _, tag := range item.entry.Tags {
		if keys, ok := c.tags[tag]; ok {
			delete(keys, item.key)

			if len(keys) == 0 {
				delete(c.tags, tag)
			}
		}
	}
}
