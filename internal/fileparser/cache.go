package fileparser

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/jobfeat/pkg/types"
)

// DefaultCacheSize is the number of results kept by NewCache(0)
const DefaultCacheSize = 4096

// cacheKey identifies one parser run over one version of a file
type cacheKey struct {
	parser     string
	path       string
	compressed bool
	size       int64
	modTime    int64
}

// Cache provides in-memory LRU caching of parser results. A result is reused
// while the file keeps its size and modification time.
type Cache struct {
	cache *lru.Cache[cacheKey, types.Value]
}

// NewCache creates a cache holding up to maxLen results
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}

	cache, err := lru.New[cacheKey, types.Value](maxLen)
	if err != nil {
		// Only fails on a non-positive size
		panic(err)
	}
	return &Cache{cache: cache}
}

// Len returns the number of cached results
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Wrap returns a parser that consults the cache before delegating to p
func (c *Cache) Wrap(p types.Parser) types.Parser {
	return &cached{Parser: p, cache: c}
}

// WrapAll wraps every parser of a registry
func (c *Cache) WrapAll(registry types.Registry) types.Registry {
	wrapped := make(types.Registry, len(registry))
	for name, p := range registry {
		wrapped[name] = c.Wrap(p)
	}
	return wrapped
}

type cached struct {
	types.Parser
	cache *Cache
}

// Extract implements types.Parser
func (c *cached) Extract(path string, compressed bool) (types.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		// Let the parser report the failure in its own terms
		return c.Parser.Extract(path, compressed)
	}

	key := cacheKey{
		parser:     c.Parser.Name(),
		path:       path,
		compressed: compressed,
		size:       info.Size(),
		modTime:    info.ModTime().UnixNano(),
	}
	if v, ok := c.cache.cache.Get(key); ok {
		return clone(v), nil
	}

	v, err := c.Parser.Extract(path, compressed)
	if err != nil {
		return nil, err
	}
	c.cache.cache.Add(key, clone(v))
	return v, nil
}

// clone copies lists so callers never share a slice with the cache
func clone(v types.Value) types.Value {
	list, ok := v.(types.List)
	if !ok {
		return v
	}
	out := make(types.List, len(list))
	for i, item := range list {
		out[i] = clone(item)
	}
	return out
}
