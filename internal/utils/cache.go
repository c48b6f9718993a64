package utils

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a plain key/value cache. Entries never expire on their own; callers
// that need freshness store timestamps and compare them against a Clock.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, value any)
}

// LRUCache is a bounded in-process Cache.
type LRUCache struct {
	entries *lru.Cache[string, any]
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LRUCache{entries: c}, nil
}

func (c *LRUCache) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

func (c *LRUCache) Put(key string, value any) {
	c.entries.Add(key, value)
}
