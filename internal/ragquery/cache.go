package ragquery

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
)

const (
	queryCacheTTL     = 30 * time.Minute
	queryCacheMaxSize = 1000
)

// cacheKey builds the canonical key for one query shape. Every parameter
// that changes the response participates, so a topK=3 answer is never served
// for a topK=10 request.
func cacheKey(q models.RAGQuery) string {
	return fmt.Sprintf("%d:%s:%d:%g:%t:%t",
		q.TenantID, q.Query, q.TopK, q.Threshold, q.IncludeMetadata, q.IncludeContent)
}

type cacheEntry struct {
	key       string
	response  *models.RAGResponse
	expiresAt time.Time
}

// queryCache is an LRU response cache with per-entry TTL.
type queryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int

	hits   int64
	misses int64

	now func() time.Time
}

func newQueryCache(maxSize int, ttl time.Duration) *queryCache {
	if maxSize <= 0 {
		maxSize = queryCacheMaxSize
	}
	if ttl <= 0 {
		ttl = queryCacheTTL
	}
	return &queryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *queryCache) get(key string) (*models.RAGResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return entry.response, true
}

func (c *queryCache) set(key string, resp *models.RAGResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.response = resp
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	el := c.order.PushFront(&cacheEntry{
		key:       key,
		response:  resp,
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[key] = el
}

func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// CacheStats are the query cache counters.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

func (c *queryCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
