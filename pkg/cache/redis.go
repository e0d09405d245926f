// Package cache wraps go-redis with the two operations the read side needs:
// load-through caching and prefix invalidation after mutations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisClient{Client: client}, nil
}

// GetOrSet unmarshals a cached value into dest on a hit. On a miss it runs
// load, which is expected to fill dest, then caches dest under key for ttl.
// A broken cache degrades to calling load directly; it never fails the read.
func (c *RedisClient) GetOrSet(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func() error) error {
	val, err := c.Client.Get(ctx, key).Result()
	if err == nil {
		if jsonErr := json.Unmarshal([]byte(val), dest); jsonErr == nil {
			return nil
		}
		// Unreadable entry: drop it and reload.
		c.Client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return ctx.Err()
	}

	if err := load(); err != nil {
		return err
	}

	if data, err := json.Marshal(dest); err == nil {
		c.Client.Set(ctx, key, data, ttl)
	}
	return nil
}

// InvalidatePrefix deletes every key under prefix. SCAN keeps it safe against
// large keyspaces.
func (c *RedisClient) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := c.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	keys := make([]string, 0, 100)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := c.Client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.Client.Del(ctx, keys...).Err()
	}
	return nil
}

func (c *RedisClient) Close() error {
	return c.Client.Close()
}
