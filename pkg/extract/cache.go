package extract

import (
	"context"
	"net/http"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ajitpratap0/ghlexport/pkg/clients"
)

// DefaultCacheSize bounds the number of cached parent listings.
const DefaultCacheSize = 64

// CachingFetcher memoizes successful GET responses for the lifetime of one
// run, so a parent listing shared by several domains (calendars for
// calendars and appointments, pipelines for opportunities and pipelines)
// costs one upstream call. Errors are never cached.
type CachingFetcher struct {
	next  clients.Fetcher
	cache *lru.Cache[string, clients.Response]
}

// NewCachingFetcher wraps next with an LRU of the given size.
func NewCachingFetcher(next clients.Fetcher, size int) (*CachingFetcher, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, clients.Response](size)
	if err != nil {
		return nil, err
	}
	return &CachingFetcher{next: next, cache: cache}, nil
}

// Do implements clients.Fetcher.
func (c *CachingFetcher) Do(ctx context.Context, req clients.Request) (clients.Response, error) {
	if req.Method != "" && req.Method != http.MethodGet {
		return c.next.Do(ctx, req)
	}

	key := cacheKey(req)
	if body, ok := c.cache.Get(key); ok {
		return body, nil
	}

	body, err := c.next.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, body)
	return body, nil
}

// Purge drops every cached response.
func (c *CachingFetcher) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached responses.
func (c *CachingFetcher) Len() int {
	return c.cache.Len()
}

func cacheKey(req clients.Request) string {
	keys := make([]string, 0, len(req.Params))
	for k, v := range req.Params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.Path)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(req.Params[k])
	}
	return b.String()
}
