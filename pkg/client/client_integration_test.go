//go:build integration

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/coin-catalog/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_FullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI(30)
	defer mock.Close()
	mock.SetMaxAge(1)

	client := newTestClient(t, mock, func(c *Config) { c.Redis = redisClient })
	ctx := context.Background()

	// Request 1: Initial request (should hit server)
	t.Log("Request 1: Initial request")
	page, err := client.ListCoins(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}
	if len(page.Coins) != 10 {
		t.Errorf("len(Coins) = %d, want 10", len(page.Coins))
	}

	// Request 2: Fresh cache hit
	t.Log("Request 2: Fresh cache hit")
	if _, err := client.ListCoins(ctx, 10, 0); err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Requests after fresh hit = %d, want 1", mock.GetRequestCount())
	}

	// Request 3: Stale entry revalidated with If-None-Match
	t.Log("Request 3: Conditional request")
	time.Sleep(1100 * time.Millisecond)
	if _, err := client.ListCoins(ctx, 10, 0); err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("Conditional requests = %d, want 1", mock.GetConditionalCount())
	}

	// Rate limit state is persisted in Redis
	remaining, err := redisClient.Get(ctx, "coinapi:rate_limit:remaining").Int()
	if err != nil {
		t.Fatalf("Rate limit state not in Redis: %v", err)
	}
	if remaining != 1000 {
		t.Errorf("Stored remaining = %d, want 1000", remaining)
	}
}

func TestIntegration_SharedRateLimitBlock(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI(5)
	defer mock.Close()

	first := newTestClient(t, mock, func(c *Config) {
		c.Redis = redisClient
		c.MaxRetries = 0
	})
	second := newTestClient(t, mock, func(c *Config) { c.Redis = redisClient })
	ctx := context.Background()

	mock.FailNext(testutil.NewRateLimitResponse(30))
	if _, err := first.ListCoins(ctx, 5, 0); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}

	// the other instance sees the exhausted quota without asking the API
	if _, err := second.CoinDetail(ctx, "coin-001"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected shared block, got %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Request count = %d, want 1", mock.GetRequestCount())
	}
}
