package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
)

// RedisCache implements Cache on a go-redis client.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache creates a new RedisCache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// RedisJourneyQueue pushes journey events onto the Redis list consumed by
// worker.JourneyWorker.
type RedisJourneyQueue struct {
	rdb *redis.Client
}

// NewRedisJourneyQueue creates a new RedisJourneyQueue.
func NewRedisJourneyQueue(rdb *redis.Client) *RedisJourneyQueue {
	return &RedisJourneyQueue{rdb: rdb}
}

// Track enqueues ev.
func (q *RedisJourneyQueue) Track(ctx context.Context, ev model.JourneyEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal journey event: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.JourneyEventsQueue, payload).Err()
}
