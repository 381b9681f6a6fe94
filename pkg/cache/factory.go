package cache

import (
	"fmt"
	"strings"
)

const (
	KindLocal = "local" // in-process, go-cache backed
	KindRedis = "redis" // shared, go-redis backed
)

// NewCache creates a cache instance based on configuration
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case KindLocal, "gocache", "":
		return NewLocalCache(config.Local), nil
	case KindRedis:
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
