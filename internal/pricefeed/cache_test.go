package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCache(rdb), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisCache(t)
	key := CacheKey([]string{"BTCUSDT", "ETHUSDT"})

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok, "empty cache should miss")

	cache.Set(ctx, key, map[string]decimal.Decimal{
		"BTCUSDT": decimal.RequireFromString("64250.5"),
		"ETHUSDT": decimal.RequireFromString("3100.25"),
	}, 3*time.Second)

	assert.True(t, mr.Exists("prices:BTCUSDT,ETHUSDT"))
	assert.Equal(t, 3*time.Second, mr.TTL("prices:BTCUSDT,ETHUSDT"))

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.True(t, got["BTCUSDT"].Equal(decimal.RequireFromString("64250.5")))
	assert.True(t, got["ETHUSDT"].Equal(decimal.RequireFromString("3100.25")))

	// A different batch is a separate entry.
	_, ok = cache.Get(ctx, CacheKey([]string{"BTCUSDT"}))
	assert.False(t, ok)
}

func TestRedisCache_Expires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisCache(t)

	cache.Set(ctx, "BTCUSDT", map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(1)}, time.Second)
	mr.FastForward(2 * time.Second)

	_, ok := cache.Get(ctx, "BTCUSDT")
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	cache, mr := newRedisCache(t)
	require.NoError(t, mr.Set("prices:BTCUSDT", "not json"))

	_, ok := cache.Get(context.Background(), "BTCUSDT")
	assert.False(t, ok)
}
