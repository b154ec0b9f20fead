package embed

import (
	"context"
	"time"
)

// CachedProvider wraps an embedding provider with an LRU cache.
type CachedProvider struct {
	inner Provider
	cache *EmbeddingCache
}

// WithCache wraps p with a cache of cacheSize entries and the given ttl.
func WithCache(p Provider, cacheSize int, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: p,
		cache: NewEmbeddingCache(cacheSize, ttl),
	}
}

// Embed returns the cached vector for text or asks the wrapped provider.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.inner.Model()
	if cached, found := c.cache.Get(model, text); found {
		return cached, nil
	}

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(model, text, embedding)
	return embedding, nil
}

// EmbedBatch only sends the texts missing from the cache to the wrapped provider.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.Model()
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if cached, found := c.cache.Get(model, text); found {
			results[i] = cached
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, idx := range missIdx {
		results[idx] = fresh[i]
		c.cache.Set(model, missTexts[i], fresh[i])
	}

	return results, nil
}

// Model returns the wrapped provider's model.
func (c *CachedProvider) Model() string {
	return c.inner.Model()
}

// Dimensions returns the wrapped provider's dimensions.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// Ping is never cached.
func (c *CachedProvider) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Stats returns cache statistics.
func (c *CachedProvider) Stats() CacheStats {
	return c.cache.Stats()
}

// Cleanup drops expired cache entries and returns how many were removed.
func (c *CachedProvider) Cleanup() int {
	return c.cache.Cleanup()
}
