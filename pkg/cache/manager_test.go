package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client against a local server, skipping the
// test when none is running. Integration tests use testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"redis":  func(t *testing.T) Backend { return NewRedisBackend(setupTestRedis(t)) },
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil backend")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			manager := NewManager(newBackend(t))
			ctx := context.Background()
			key := Key{Endpoint: "/v2/coin/razxDUgYGNAdQ"}

			entry := &Entry{
				Body:       []byte(`{"status":"success"}`),
				ETag:       `"eth-1"`,
				Expires:    time.Now().Add(5 * time.Minute),
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				StoredAt:   time.Now(),
			}

			if err := manager.Set(ctx, key, entry); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := manager.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got.Body) != string(entry.Body) {
				t.Errorf("Data = %s, want %s", got.Body, entry.Body)
			}
			if got.ETag != entry.ETag {
				t.Errorf("ETag = %s, want %s", got.ETag, entry.ETag)
			}
			if got.Stale() {
				t.Error("entry should be fresh")
			}
		})
	}
}

func TestManager_Miss(t *testing.T) {
	manager := NewManager(NewMemoryBackend())

	_, err := manager.Get(context.Background(), Key{Endpoint: "/v2/coin/unknown"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_SkipsExpiredEntries(t *testing.T) {
	manager := NewManager(NewMemoryBackend())
	ctx := context.Background()
	key := Key{Endpoint: "/v2/coins"}

	if err := manager.Set(ctx, key, &Entry{Expires: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_StaleEntryKeptForRevalidation(t *testing.T) {
	backend := NewMemoryBackend()
	manager := NewManager(backend).WithStaleGrace(time.Minute)
	ctx := context.Background()
	key := Key{Endpoint: "/v2/coins"}

	entry := &Entry{ETag: `"v1"`, Expires: time.Now().Add(20 * time.Millisecond)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Stale() {
		t.Error("entry should be stale")
	}

	if err := manager.UpdateTTL(ctx, key, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}
	got, err = manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after UpdateTTL failed: %v", err)
	}
	if got.Stale() {
		t.Error("entry should be fresh after UpdateTTL")
	}
}

func TestManager_NoGraceDropsAfterExpiry(t *testing.T) {
	manager := NewManager(NewMemoryBackend()).WithStaleGrace(0)
	ctx := context.Background()
	key := Key{Endpoint: "/v2/coins"}

	if err := manager.Set(ctx, key, &Entry{Expires: time.Now().Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(NewMemoryBackend())
	ctx := context.Background()
	key := Key{Endpoint: "/v2/coins"}

	if err := manager.Set(ctx, key, &Entry{Expires: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_InvalidEntry(t *testing.T) {
	backend := NewMemoryBackend()
	manager := NewManager(backend)
	ctx := context.Background()
	key := Key{Endpoint: "/v2/coins"}

	_ = backend.Set(ctx, key.String(), []byte("not json"), time.Minute)

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
	if backend.Len() != 0 {
		t.Error("corrupted entry should be deleted")
	}
}

func TestManager_SetNil(t *testing.T) {
	manager := NewManager(NewMemoryBackend())
	if err := manager.Set(context.Background(), Key{}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestMemoryBackend_Sweep(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	_ = backend.Set(ctx, "a", []byte("1"), time.Millisecond)
	_ = backend.Set(ctx, "b", []byte("2"), time.Minute)
	time.Sleep(5 * time.Millisecond)

	if dropped := backend.Sweep(); dropped != 1 {
		t.Errorf("Sweep() = %d, want 1", dropped)
	}
	if backend.Len() != 1 {
		t.Errorf("Len() = %d, want 1", backend.Len())
	}
}
