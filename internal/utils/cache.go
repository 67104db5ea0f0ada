package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Key formatting
	"time"          // Time durations

	gocache "github.com/patrickmn/go-cache" // In-process fallback
	"github.com/redis/go-redis/v9"          // Redis client
)

// DefaultCacheTTL is used for wallet and listing reads
const DefaultCacheTTL = 60 * time.Second

// Cache stores JSON snapshots of read models. Redis is used when configured,
// otherwise an in-process store keeps single-instance deployments working.
type Cache struct {
	rdb   *redis.Client
	local *gocache.Cache
}

// NewRedisCache wraps a Redis client
func NewRedisCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// NewLocalCache keeps entries in process memory
func NewLocalCache() *Cache {
	return &Cache{local: gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL)}
}

// GetCache retrieves a value and unmarshals it into dest
func (c *Cache) GetCache(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	if c.rdb == nil {
		raw, ok := c.local.Get(key)
		if !ok {
			return false, nil
		}
		return true, json.Unmarshal(raw.([]byte), dest)
	}
	val, err := c.rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value with a specified TTL
func (c *Cache) SetCache(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err
	}
	if c.rdb == nil {
		c.local.Set(key, b, ttl)
		return nil
	}
	return c.rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys
func (c *Cache) DeleteCache(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	if c.rdb == nil {
		for _, k := range keys {
			c.local.Delete(k)
		}
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// WalletCacheKey is the cache key of a doctor's wallet snapshot
func WalletCacheKey(doctorID uint) string {
	return "wallet:doctor:" + strconv.FormatUint(uint64(doctorID), 10)
}

// InvalidateWallet drops the cached wallet of a doctor
func (c *Cache) InvalidateWallet(ctx context.Context, doctorID uint) error {
	return c.DeleteCache(ctx, WalletCacheKey(doctorID))
}
