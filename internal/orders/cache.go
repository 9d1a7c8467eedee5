package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const statsCacheKey = "taxdesk:dashboard:stats"

// StatsCache keeps the accountant dashboard aggregate in Redis for a short
// TTL. The dashboard is read far more often than order state changes.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Get returns the cached stats, or nil on miss. Redis trouble counts as a
// miss; the dashboard falls back to the database.
func (c *StatsCache) Get(ctx context.Context) *DashboardStats {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil
		}
		return nil
	}
	var stats DashboardStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil
	}
	return &stats
}

// Set stores the stats, best-effort.
func (c *StatsCache) Set(ctx context.Context, stats *DashboardStats) {
	if c == nil || c.client == nil || stats == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, statsCacheKey, data, c.ttl).Err()
}
