package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/signal-monitor/internal/model"
)

// CachedDirectory wraps a primary Directory (PostgreSQL) with a Redis
// read-through cache. Communities and channels are owned by the CRUD
// service, so entries simply expire after ttl.
type CachedDirectory struct {
	primary Directory
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedDirectory creates a cached wrapper around a primary directory.
func NewCachedDirectory(primary Directory, rdb redis.Cmdable, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (d *CachedDirectory) CommunitiesHiringTrader(ctx context.Context, traderID string) ([]model.Community, error) {
	// Try cache.
	data, err := d.rdb.Get(ctx, hiringKey(traderID)).Bytes()
	if err == nil {
		var communities []model.Community
		if json.Unmarshal(data, &communities) == nil {
			return communities, nil
		}
	}

	// Cache miss: read from primary.
	communities, err := d.primary.CommunitiesHiringTrader(ctx, traderID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(communities); err == nil {
		d.rdb.Set(ctx, hiringKey(traderID), data, d.ttl)
	}
	return communities, nil
}

func (d *CachedDirectory) ActiveChannels(ctx context.Context, communityID string) ([]model.Channel, error) {
	data, err := d.rdb.Get(ctx, channelsKey(communityID)).Bytes()
	if err == nil {
		var channels []model.Channel
		if json.Unmarshal(data, &channels) == nil {
			return channels, nil
		}
	}

	channels, err := d.primary.ActiveChannels(ctx, communityID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(channels); err == nil {
		d.rdb.Set(ctx, channelsKey(communityID), data, d.ttl)
	}
	return channels, nil
}

// Invalidate drops cached entries for a trader and a set of communities.
func (d *CachedDirectory) Invalidate(ctx context.Context, traderID string, communityIDs ...string) {
	keys := []string{hiringKey(traderID)}
	for _, id := range communityIDs {
		keys = append(keys, channelsKey(id))
	}
	d.rdb.Del(ctx, keys...)
}

func hiringKey(traderID string) string { return fmt.Sprintf("directory:hiring:%s", traderID) }
func channelsKey(id string) string     { return fmt.Sprintf("directory:channels:%s", id) }
