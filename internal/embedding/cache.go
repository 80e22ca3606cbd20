package embedding

import (
	lru "github.com/hashicorp/golang-lru"
)

const DefaultCacheSize = 1000

// Cache memoises single-text embeddings. Eviction drops the oldest inserted
// key; reads never refresh an entry, so this is insertion order, not LRU.
type Cache struct {
	entries *lru.Cache
}

func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Cache{entries: c}
}

// Get returns the cached vector for key without touching its position.
func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	return v.([]float32), true
}

// Put stores vec under key unless key is already present.
func (c *Cache) Put(key string, vec []float32) {
	c.entries.ContainsOrAdd(key, vec)
}

func (c *Cache) contains(key string) bool { return c.entries.Contains(key) }

func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) Clear() { c.entries.Purge() }
