package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend stores serialized cache entries.
type Backend interface {
	// Get returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Layer names the backend in metrics ("redis", "memory").
	Layer() string
}

// RedisBackend keeps entries in Redis with native key expiry.
type RedisBackend struct {
	redis *redis.Client
}

// NewRedisBackend creates a Redis backed store.
func NewRedisBackend(redisClient *redis.Client) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisBackend{redis: redisClient}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := b.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *RedisBackend) Layer() string { return "redis" }

type memoryItem struct {
	data     []byte
	deadline time.Time
}

// MemoryBackend is a process-local store. Expired items are dropped lazily on
// access and on Sweep.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

// NewMemoryBackend creates an empty in-memory store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]memoryItem)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(item.deadline) {
		delete(b.items, key)
		return nil, ErrCacheMiss
	}
	return item.data, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[key] = memoryItem{
		data:     append([]byte(nil), data...),
		deadline: time.Now().Add(ttl),
	}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.items, key)
	return nil
}

func (b *MemoryBackend) Layer() string { return "memory" }

// Sweep removes every expired item and returns how many were dropped.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, item := range b.items {
		if now.After(item.deadline) {
			delete(b.items, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of stored items, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
