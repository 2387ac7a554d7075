package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces slots written to Redis.
const DefaultRedisPrefix = "coincatalog:kv:"

// Redis stores slots as plain Redis strings without expiry.
type Redis struct {
	redis  *redis.Client
	prefix string
}

// NewRedis creates a Redis slot store. An empty prefix uses DefaultRedisPrefix.
func NewRedis(redisClient *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{redis: redisClient, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: redis get: %w", err)
	}
	return data, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	if err := r.redis.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv: redis set: %w", err)
	}
	return nil
}
