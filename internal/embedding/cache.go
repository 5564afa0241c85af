package embedding

import (
	"container/list"
	"sync"
	"time"
)

// CacheStats is a snapshot of cache behavior.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Cache is an LRU cache for embeddings keyed by content hash, with per-entry
// TTL. Expired entries are dropped on access.
type Cache struct {
	capacity int
	ttl      time.Duration
	cache    map[string]*list.Element
	lru      *list.List
	hits     int64
	misses   int64
	mu       sync.Mutex
	now      func() time.Time // overridable in tests
}

type cacheEntry struct {
	key       string
	value     []float32
	expiresAt time.Time
}

// NewCache creates a cache holding up to capacity entries for at most ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get returns the cached embedding for key if present and fresh.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(elem)
		delete(c.cache, key)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Set stores the embedding for key, evicting the oldest entry at capacity.
func (c *Cache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expires
		return
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: expires}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Clear drops all entries and resets counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lru = list.New()
	c.hits = 0
	c.misses = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Entries: c.lru.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
