package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

type RedisOccupancyCache struct {
	client *redis.Client
}

func NewRedisOccupancyCache(addr, password string, db int) *RedisOccupancyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisOccupancyCache{client: client}
}

func (c *RedisOccupancyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOccupancyCache) Close() error {
	return c.client.Close()
}

func (c *RedisOccupancyCache) Get(ctx context.Context, key string) ([]core.Pallet, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var pallets []core.Pallet
	if err := json.Unmarshal([]byte(val), &pallets); err != nil {
		return nil, false, err
	}
	return pallets, true, nil
}

func (c *RedisOccupancyCache) Set(ctx context.Context, key string, value []core.Pallet, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisOccupancyCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
