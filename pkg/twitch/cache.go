package twitch

import (
	"time"

	"github.com/coocood/freecache"
)

// Cache stores lookup responses by key
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type lruCache struct {
	cache *freecache.Cache
	ttl   int
}

// NewCache returns a freecache-backed cache of sizeBytes, or a no-op cache
// when sizeBytes is not positive
func NewCache(sizeBytes int, ttl time.Duration) Cache {
	if sizeBytes <= 0 {
		return noopCache{}
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return &lruCache{cache: freecache.NewCache(sizeBytes), ttl: seconds}
}

func (c *lruCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *lruCache) Set(key string, value []byte) {
	_ = c.cache.Set([]byte(key), value, c.ttl)
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool) { return nil, false }
func (noopCache) Set(string, []byte)        {}
