package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mikeboe/deep-research/pkg/research"
)

// CachedSearcher memoizes successful searches so refinement iterations that
// repeat a query do not hit the provider again. Errors are never cached.
type CachedSearcher struct {
	next  research.Searcher
	cache *cache.Cache
}

func NewCachedSearcher(next research.Searcher, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(query string, maxResults int) string {
	return fmt.Sprintf("%d|%s", maxResults, strings.ToLower(strings.TrimSpace(query)))
}

// Search implements research.Searcher.
func (c *CachedSearcher) Search(ctx context.Context, query string, maxResults int) ([]research.Document, error) {
	key := cacheKey(query, maxResults)
	if v, ok := c.cache.Get(key); ok {
		return clone(v.([]research.Document)), nil
	}

	docs, err := c.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, clone(docs))
	return docs, nil
}

// Len reports the number of cached queries.
func (c *CachedSearcher) Len() int {
	return c.cache.ItemCount()
}

func clone(docs []research.Document) []research.Document {
	out := make([]research.Document, len(docs))
	copy(out, docs)
	return out
}
