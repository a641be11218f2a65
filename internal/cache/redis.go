// Package cache stores computed hot room rankings in Redis so repeated
// queries within the TTL skip the aggregation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/nodechat/internal/types"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "nodechat:hot-rooms:"

type HotRoomsCache interface {
	Get(ctx context.Context, key string) ([]types.HotRoom, bool, error)
	Set(ctx context.Context, key string, rooms []types.HotRoom) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts), ttl: ttl}, nil
}

// Key identifies one parameter combination of the hot rooms query.
func Key(windowHours, limit, minVisits int) string {
	return fmt.Sprintf("%d:%d:%d", windowHours, limit, minVisits)
}

// Get reports ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]types.HotRoom, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var rooms []types.HotRoom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, false, fmt.Errorf("decode cached rooms: %w", err)
	}
	return rooms, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, rooms []types.HotRoom) error {
	raw, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
