package featureflag

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the full flag snapshot.
type Cache interface {
	Get(ctx context.Context) (map[string]bool, bool, error)
	Set(ctx context.Context, flags map[string]bool, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu        sync.RWMutex
	flags     map[string]bool
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now}
}

// Get returns the cached snapshot when present and unexpired.
func (c *MemoryCache) Get(_ context.Context) (map[string]bool, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.flags == nil || !c.now().Before(c.expiresAt) {
		return nil, false, nil
	}
	return copyFlags(c.flags), true, nil
}

// Set stores the snapshot for ttl.
func (c *MemoryCache) Set(_ context.Context, flags map[string]bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = copyFlags(flags)
	c.expiresAt = c.now().Add(ttl)
	return nil
}

// Invalidate drops the snapshot.
func (c *MemoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = nil
	c.expiresAt = time.Time{}
	return nil
}

// RedisCache shares the snapshot across processes through Redis.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache constructs a RedisCache storing the snapshot under prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	key := "feature_flags:all"
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisCache{client: client, key: key}
}

// Get returns the cached snapshot when present.
func (c *RedisCache) Get(ctx context.Context) (map[string]bool, bool, error) {
	raw, errGet := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(errGet, redis.Nil) {
		return nil, false, nil
	}
	if errGet != nil {
		return nil, false, errGet
	}
	var flags map[string]bool
	if errUnmarshal := json.Unmarshal(raw, &flags); errUnmarshal != nil {
		return nil, false, errUnmarshal
	}
	return flags, true, nil
}

// Set stores the snapshot for ttl.
func (c *RedisCache) Set(ctx context.Context, flags map[string]bool, ttl time.Duration) error {
	payload, errMarshal := json.Marshal(flags)
	if errMarshal != nil {
		return errMarshal
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

// Invalidate drops the snapshot.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

func copyFlags(flags map[string]bool) map[string]bool {
	out := make(map[string]bool, len(flags))
	for k, v := range flags {
		out[k] = v
	}
	return out
}
