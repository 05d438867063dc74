package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache stores service tokens until shortly before they expire.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// RedisTokenCache keeps tokens in Redis so every server instance shares one
// token per audience.
type RedisTokenCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTokenCache returns a cache writing keys under prefix.
func NewRedisTokenCache(rdb *redis.Client, prefix string) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, prefix: prefix}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, token, ttl).Err()
}

// MemoryTokenCache is a process-local TokenCache.
type MemoryTokenCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemoryTokenCache returns an empty cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, key, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{token: token, expires: c.now().Add(ttl)}
	return nil
}
