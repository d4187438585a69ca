package memory

import (
	"context"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tailored-agentic-units/switchboard/embedding"
)

// EmbeddingCache memoizes an Embedder by exact text. Similarity queries and
// repeated message bodies hit the cache instead of the embedding service.
// Safe for concurrent use.
type EmbeddingCache struct {
	next   embedding.Embedder
	cache  *lru.Cache[string, []float64]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewEmbeddingCache wraps next with an LRU of size entries. A size below one
// returns next unwrapped.
func NewEmbeddingCache(next embedding.Embedder, size int) (embedding.Embedder, error) {
	if size < 1 {
		return next, nil
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{next: next, cache: cache}, nil
}

func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return slices.Clone(vec), nil
	}
	c.misses.Add(1)

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, slices.Clone(vec))
	return vec, nil
}

// Stats reports cache hits and misses since creation.
func (c *EmbeddingCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *EmbeddingCache) Len() int {
	return c.cache.Len()
}
