// Package aggregator resolves the favorite coin ids into renderable views by
// fetching every coin's detail concurrently.
//
// A refresh tolerates partial failure: ids whose fetch fails are logged and
// left out of the result. Views keep the order of the favorites set.
//
// Overlapping refreshes follow a supersede policy. Each refresh takes an
// epoch; when a newer refresh has started by the time an older one joins,
// the older result is dropped and Refresh returns ErrSuperseded. A refresh
// whose context ends is dropped the same way and returns the context error.
// Fetches of the same id across overlapping refreshes are shared, and a
// shared fetch outlives any single caller giving up on it.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/coin-catalog/internal/notify"
	"github.com/Sternrassler/coin-catalog/pkg/coin"
	"github.com/Sternrassler/coin-catalog/pkg/fanout"
	"github.com/Sternrassler/coin-catalog/pkg/favorites"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned by a refresh whose result was dropped because a
// newer refresh started.
var ErrSuperseded = errors.New("aggregator: refresh superseded")

var (
	aggregatorRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_aggregator_refreshes_total",
		Help: "Total favorites refreshes by result",
	}, []string{"result"})

	aggregatorFetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_aggregator_fetch_failures_total",
		Help: "Total number of favorite detail fetches that failed and were left out",
	})

	aggregatorRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coin_aggregator_refresh_duration_seconds",
		Help:    "Duration of favorites refreshes in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// DetailFetcher fetches the full record of one coin.
type DetailFetcher interface {
	CoinDetail(ctx context.Context, id string) (*coin.Detail, error)
}

// Favorites is the part of the favorites store the aggregator reads.
type Favorites interface {
	All(ctx context.Context) ([]string, error)
	Subscribe() (<-chan favorites.Event, func())
}

// Config holds aggregator configuration.
type Config struct {
	// MaxConcurrency bounds the detail fetches in flight per refresh.
	MaxConcurrency int
	// FetchTimeout bounds each detail fetch, 0 means none.
	FetchTimeout time.Duration
	// EventBuffer is the per-subscriber update buffer.
	EventBuffer int
}

// DefaultConfig returns the aggregator defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		FetchTimeout:   15 * time.Second,
		EventBuffer:    4,
	}
}

// Update is published whenever a refresh result is accepted.
type Update struct {
	Views []coin.FavoriteView
	// Failed is the number of favorites left out.
	Failed int
}

// Aggregator hydrates favorite ids into views.
type Aggregator struct {
	favorites Favorites
	fetcher   DetailFetcher
	config    Config
	logger    zerolog.Logger
	group     singleflight.Group
	updates   *notify.Broadcaster[Update]

	epoch atomic.Uint64

	mu    sync.RWMutex
	views []coin.FavoriteView
}

// New creates an Aggregator.
func New(favs Favorites, fetcher DetailFetcher, config Config) (*Aggregator, error) {
	if favs == nil {
		return nil, fmt.Errorf("favorites store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("detail fetcher is required")
	}
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaults.EventBuffer
	}

	return &Aggregator{
		favorites: favs,
		fetcher:   fetcher,
		config:    config,
		logger:    log.With().Str("component", "aggregator").Logger(),
		updates:   notify.New[Update](config.EventBuffer),
	}, nil
}

// Refresh rebuilds the views from the current favorites. Per-id fetch
// failures never fail the refresh; only a favorites read error,
// supersession or the end of ctx does. A failed refresh leaves the last
// accepted views in place and publishes nothing.
func (a *Aggregator) Refresh(ctx context.Context) ([]coin.FavoriteView, error) {
	epoch := a.epoch.Add(1)
	start := time.Now()
	defer func() {
		aggregatorRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	ids, err := a.favorites.All(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, a.dropCancelled(epoch, ctx.Err())
	}
	if err != nil {
		aggregatorRefreshesTotal.WithLabelValues("error").Inc()
		a.logger.Error().Err(err).Msg("Failed to read favorites")
		return nil, fmt.Errorf("read favorites: %w", err)
	}

	fetchCfg := fanout.Config{MaxConcurrency: a.config.MaxConcurrency, Timeout: a.config.FetchTimeout}
	results := fanout.Run(ctx, ids, fetchCfg, a.fetchDetail)
	if err := ctx.Err(); err != nil {
		return nil, a.dropCancelled(epoch, err)
	}

	views := make([]coin.FavoriteView, 0, len(ids))
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			aggregatorFetchFailuresTotal.Inc()
			a.logger.Warn().Err(r.Err).Str("coin_id", ids[i]).Msg("Favorite detail fetch failed, leaving it out")
			continue
		}
		views = append(views, coin.NewFavoriteView(r.Value))
	}

	a.mu.Lock()
	if err := ctx.Err(); err != nil {
		a.mu.Unlock()
		return nil, a.dropCancelled(epoch, err)
	}
	if a.epoch.Load() != epoch {
		a.mu.Unlock()
		aggregatorRefreshesTotal.WithLabelValues("superseded").Inc()
		a.logger.Debug().Uint64("epoch", epoch).Msg("Dropping superseded refresh")
		return nil, ErrSuperseded
	}
	a.views = views
	a.mu.Unlock()

	aggregatorRefreshesTotal.WithLabelValues("ok").Inc()
	a.logger.Info().
		Int("favorites", len(ids)).
		Int("views", len(views)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Favorites refreshed")

	a.updates.Publish(Update{Views: slices.Clone(views), Failed: failed})
	return slices.Clone(views), nil
}

func (a *Aggregator) dropCancelled(epoch uint64, err error) error {
	aggregatorRefreshesTotal.WithLabelValues("cancelled").Inc()
	a.logger.Debug().Err(err).Uint64("epoch", epoch).Msg("Dropping cancelled refresh")
	return err
}

// fetchDetail shares one in-flight fetch per id between overlapping refreshes.
// The shared fetch runs detached from the caller that started it, bounded by
// FetchTimeout, so a caller giving up only abandons its own wait.
func (a *Aggregator) fetchDetail(ctx context.Context, id string) (*coin.Detail, error) {
	ch := a.group.DoChan(id, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if a.config.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, a.config.FetchTimeout)
			defer cancel()
		}
		return a.fetcher.CoinDetail(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			a.logger.Trace().Str("coin_id", id).Msg("Shared in-flight detail fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*coin.Detail), nil
	}
}

// Views returns the last accepted views.
func (a *Aggregator) Views() []coin.FavoriteView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.views)
}

// Subscribe registers for accepted refresh results.
func (a *Aggregator) Subscribe() (<-chan Update, func()) {
	return a.updates.Subscribe()
}

// Run refreshes once, then again on every favorites change, until ctx is
// done. Changes that arrive while a refresh is running start a new refresh
// that supersedes it. Run returns ctx.Err() on cancellation.
func (a *Aggregator) Run(ctx context.Context) error {
	events, cancel := a.favorites.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	refresh := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) && ctx.Err() == nil {
				a.logger.Error().Err(err).Msg("Favorites refresh failed")
			}
		}()
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			// a burst of changes needs only one refresh
			drain(events)
			refresh()
		}
	}
}

func drain(events <-chan favorites.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
