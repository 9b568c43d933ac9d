package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisNameCache struct {
	client *redis.Client
}

func NewRedisNameCache(addr string, password string, db int) *RedisNameCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisNameCache{client: client}
}

func (c *RedisNameCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisNameCache) Close() error {
	return c.client.Close()
}

func (c *RedisNameCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisNameCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if value == "" {
		return nil
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisNameCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
