package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebank/internal/model"
)

const statsKey = "stats:overview"

// StatsCache holds the assembled /api/stats response for a short window so
// repeated dashboard polls don't re-run the aggregation pipelines.
type StatsCache interface {
	Get(ctx context.Context) (*model.StatsOverview, error)
	Set(ctx context.Context, stats *model.StatsOverview) error
	Invalidate(ctx context.Context) error
}

type statsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client) StatsCache {
	return &statsCache{
		client: client,
		ttl:    30 * time.Second,
	}
}

func (c *statsCache) Get(ctx context.Context) (*model.StatsOverview, error) {
	data, err := c.client.Get(ctx, statsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats model.StatsOverview
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *statsCache) Set(ctx context.Context, stats *model.StatsOverview) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey, data, c.ttl).Err()
}

func (c *statsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, statsKey).Err()
}
