package embed

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const defaultCacheSize = 1000

// EmbeddingCache is an in-memory LRU cache of embedding vectors keyed by
// model and text. It is used by long-running processes where the same
// query tends to be searched repeatedly.
type EmbeddingCache struct {
	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64
	expired   int64
}

type cacheEntry struct {
	key       string
	vector    []float32
	createdAt time.Time
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits       int64
	Misses     int64
	Entries    int
	MaxSize    int
	HitRate    float64
	Evictions  int64
	ExpiredTTL int64
}

// NewEmbeddingCache creates a cache holding at most maxSize vectors.
// A zero ttl keeps entries until they are evicted.
func NewEmbeddingCache(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &EmbeddingCache{
		order:   list.New(),
		entries: make(map[string]*list.Element),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key derives the cache key for a model and text.
func (c *EmbeddingCache) Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached vector.
func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	key := c.Key(model, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		c.removeElement(elem)
		c.expired++
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return append([]float32(nil), entry.vector...), true
}

// Set stores a copy of vector, evicting the least recently used entry
// when the cache is full.
func (c *EmbeddingCache) Set(model, text string, vector []float32) {
	key := c.Key(model, text)
	vec := append([]float32(nil), vector...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.vector = vec
		entry.createdAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		c.removeElement(c.order.Back())
		c.evictions++
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: vec, createdAt: c.now()})
}

// must be called with mu held
func (c *EmbeddingCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry).key)
}

// Size returns the current number of entries in the cache.
func (c *EmbeddingCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all entries and resets the counters.
func (c *EmbeddingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.hits, c.misses, c.evictions, c.expired = 0, 0, 0, 0
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *EmbeddingCache) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.Sub(elem.Value.(*cacheEntry).createdAt) > c.ttl {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	c.expired += int64(removed)
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Hits:       c.hits,
		Misses:     c.misses,
		Entries:    c.order.Len(),
		MaxSize:    c.maxSize,
		Evictions:  c.evictions,
		ExpiredTTL: c.expired,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}
