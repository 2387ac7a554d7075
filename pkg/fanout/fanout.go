// Package fanout runs one task per input on a bounded worker pool and
// collects every outcome (all-settled).
//
// Example usage:
//
//	results := fanout.Run(ctx, ids, fanout.DefaultConfig(), func(ctx context.Context, id string) (*coin.Detail, error) {
//		return gw.CoinDetail(ctx, id)
//	})
//	for _, r := range results {
//		if r.Err != nil { ... }
//	}
//
// Run:
//   - Spawns min(MaxConcurrency, len(items)) workers
//   - Distributes items across workers through a queue
//   - Never aborts on a failed item; siblings keep running
//   - Returns results in input order, Result.Index == input position
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds worker pool configuration.
type Config struct {
	// MaxConcurrency is the maximum number of tasks in flight.
	MaxConcurrency int
	// Timeout per task, 0 means none beyond ctx.
	Timeout time.Duration
}

// DefaultConfig returns the pool settings used for detail fetches.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        15 * time.Second,
	}
}

// Result is the outcome of one task.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run calls fn once per item and waits for all of them. Items not yet
// started when ctx is done settle with ctx.Err().
func Run[T, R any](ctx context.Context, items []T, cfg Config, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	workers := cfg.MaxConcurrency
	if workers <= 0 {
		workers = DefaultConfig().MaxConcurrency
	}
	if workers > len(items) {
		workers = len(items)
	}

	start := time.Now()

	queue := make(chan int, len(items))
	for i := range items {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0

			for i := range queue {
				results[i].Index = i

				// Check context cancellation
				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}

				taskCtx, cancel := ctx, context.CancelFunc(func() {})
				if cfg.Timeout > 0 {
					taskCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
				}
				results[i].Value, results[i].Err = fn(taskCtx, items[i])
				cancel()
				processed++
			}

			log.Trace().
				Str("component", "fanout").
				Int("worker_id", workerID).
				Int("tasks_processed", processed).
				Msg("Worker completed")
		}(w)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Debug().
		Str("component", "fanout").
		Int("tasks", len(items)).
		Int("failed", failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Fan-out complete")

	return results
}
