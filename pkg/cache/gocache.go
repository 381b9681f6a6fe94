package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// localCache wraps the go-cache package behind the Cache interface.
type localCache struct {
	cache *gocache.Cache
}

// NewLocalCache creates an in-process cache backed by go-cache.
func NewLocalCache(config LocalConfig) Cache {
	defaultExpiration := config.DefaultExpiration
	if defaultExpiration == 0 {
		defaultExpiration = 5 * time.Minute
	}
	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	return &localCache{
		cache: gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves a value from cache by key
func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, found := lc.cache.Get(key); found {
		return value, true
	}
	return nil, false
}

// Set stores a value in cache with expiration
func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.cache.Set(key, value, expiration)
	return nil
}

// Delete removes a key from cache
func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.cache.Delete(key)
	return nil
}

// Exists checks if a key exists in cache
func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, found := lc.cache.Get(key)
	return found
}

// Clear removes all entries from cache
func (lc *localCache) Clear(ctx context.Context) error {
	lc.cache.Flush()
	return nil
}

// GetWithTTL retrieves a value together with its remaining lifetime
func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	value, expiration, found := lc.cache.GetWithExpiration(key)
	if !found {
		return nil, 0, false
	}
	if expiration.IsZero() {
		// Entry without expiration.
		return value, 0, true
	}
	ttl := time.Until(expiration)
	if ttl < 0 {
		return nil, 0, false
	}
	return value, ttl, true
}

// Close releases the cache. go-cache has no resources to free.
func (lc *localCache) Close() error {
	lc.cache.Flush()
	return nil
}
