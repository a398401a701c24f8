package classify

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"billingsync/internal/cache"
)

// CachedLookup memoizes another Lookup. Concurrent lookups of the same name
// share one call to the wrapped Lookup. Errors are not cached.
type CachedLookup struct {
	next  Lookup
	cache *cache.LRUCache[Match]
	group singleflight.Group
}

var _ Lookup = (*CachedLookup)(nil)

func NewCachedLookup(next Lookup, size int, ttl time.Duration) *CachedLookup {
	return &CachedLookup{next: next, cache: cache.NewLRUCache[Match](size, ttl)}
}

func (c *CachedLookup) Lookup(ctx context.Context, name string) (Match, error) {
	key := cases.Fold().String(strings.TrimSpace(name))
	if m, ok := c.cache.Get(key); ok {
		return m, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if m, ok := c.cache.Get(key); ok {
			return m, nil
		}
		m, err := c.next.Lookup(ctx, name)
		if err != nil {
			return Match{}, err
		}
		c.cache.Set(key, m)
		return m, nil
	})
	if err != nil {
		return Match{}, err
	}
	return v.(Match), nil
}

// Stats reports cache effectiveness.
func (c *CachedLookup) Stats() cache.Stats {
	return c.cache.Stats()
}
