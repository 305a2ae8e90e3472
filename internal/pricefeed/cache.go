package pricefeed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache stores the result of one provider batch under the canonical key of
// the requested symbol set. Granularity is the exact batch: a request for a
// different set of symbols is always a miss, even if every symbol in it was
// fetched as part of another batch.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]decimal.Decimal, bool)
	Set(ctx context.Context, key string, prices map[string]decimal.Decimal, ttl time.Duration)
}

// CacheKey joins an already sorted, deduplicated symbol list.
func CacheKey(symbols []string) string {
	return strings.Join(symbols, ",")
}

type cacheEntry struct {
	prices  map[string]decimal.Decimal
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (map[string]decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return copyPrices(e.prices), true
}

func (c *MemoryCache) Set(_ context.Context, key string, prices map[string]decimal.Decimal, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop expired batches so the map does not grow with every symbol set.
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{prices: copyPrices(prices), expires: now.Add(ttl)}
}

// RedisCache shares batches across monitor instances.
type RedisCache struct {
	rdb redis.Cmdable
}

// NewRedisCache creates a Redis-backed price cache.
func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (map[string]decimal.Decimal, bool) {
	data, err := c.rdb.Get(ctx, redisPriceKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var prices map[string]decimal.Decimal
	if json.Unmarshal(data, &prices) != nil {
		return nil, false
	}
	return prices, true
}

func (c *RedisCache) Set(ctx context.Context, key string, prices map[string]decimal.Decimal, ttl time.Duration) {
	if data, err := json.Marshal(prices); err == nil {
		c.rdb.Set(ctx, redisPriceKey(key), data, ttl)
	}
}

func redisPriceKey(key string) string { return "prices:" + key }

func copyPrices(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
