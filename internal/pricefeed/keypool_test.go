package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPool_DedupesAndTrims(t *testing.T) {
	pool := NewKeyPool(ParseKeys(" k1, k2 ,,k1,k3 "))
	assert.Equal(t, 3, pool.Len())

	key, err := pool.Current()
	require.NoError(t, err)
	assert.Equal(t, "k1", key)
}

func TestKeyPool_ExcludeCurrentAdvances(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2", "k3"})

	require.True(t, pool.Exclude("k1"))
	key, _ := pool.Current()
	assert.Equal(t, "k2", key)

	require.True(t, pool.Exclude("k2"))
	key, _ = pool.Current()
	assert.Equal(t, "k3", key)

	// Excluding twice is a no-op.
	assert.False(t, pool.Exclude("k1"))
}

func TestKeyPool_ExcludeLastWrapsAround(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2"})
	pool.Exclude("k1")
	pool.Exclude("k2")

	_, err := pool.Current()
	assert.ErrorIs(t, err, ErrNoAPIKeys)
	assert.True(t, pool.Excluded("k1"))
	assert.True(t, pool.Excluded("k2"))
}

func TestKeyPool_Empty(t *testing.T) {
	pool := NewKeyPool(nil)
	_, err := pool.Current()
	assert.ErrorIs(t, err, ErrNoAPIKeys)
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "BTCUSDT", map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(1)}, 15*time.Second)

	now = now.Add(14 * time.Second)
	_, ok := c.Get(ctx, "BTCUSDT")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, "BTCUSDT")
	assert.False(t, ok)
}

func TestPoints(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	points := Points(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(65000)}, at)
	require.Len(t, points, 1)
	assert.Equal(t, "price", points[0].Name())
	assert.Equal(t, at, points[0].Time())
}
