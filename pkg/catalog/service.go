// Package catalog delivers the coin listing page by page, in arrival order,
// with at most one page request outstanding, and derives sorted and filtered
// views from it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Sternrassler/coin-catalog/internal/notify"
	"github.com/Sternrassler/coin-catalog/pkg/coin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnknownSort is returned for a sort the catalog does not support.
var ErrUnknownSort = errors.New("catalog: unknown sort")

// Prometheus metrics for catalog paging.
var (
	catalogPagesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_catalog_pages_loaded_total",
		Help: "Total number of listing pages appended to the catalog",
	})

	catalogPageErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_catalog_page_errors_total",
		Help: "Total number of failed listing page fetches",
	})

	catalogItemsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coin_catalog_items_loaded",
		Help: "Number of coins currently held by the catalog",
	})
)

// PageFetcher fetches one page of the coin listing.
type PageFetcher interface {
	ListCoins(ctx context.Context, limit, offset int) (*coin.CoinsPage, error)
}

// Config holds catalog paging configuration.
type Config struct {
	// PageSize is the number of coins requested per page.
	PageSize int
	// MaxItems caps the listing; paging stops once it is reached.
	MaxItems int
	// EventBuffer is the per-subscriber event buffer.
	EventBuffer int
}

// DefaultConfig returns the paging used by the coin list screen.
func DefaultConfig() Config {
	return Config{
		PageSize:    20,
		MaxItems:    100,
		EventBuffer: 8,
	}
}

// FetchError reports a failed page fetch with the page it asked for.
type FetchError struct {
	Offset int
	Limit  int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("catalog: fetch page offset=%d limit=%d: %v", e.Offset, e.Limit, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PagingState is a snapshot of the paging bookkeeping.
type PagingState struct {
	Offset   int
	PageSize int
	Loaded   int
	InFlight bool
	Terminal bool
}

// EventKind tells what changed in the catalog.
type EventKind int

const (
	EventPageLoaded EventKind = iota + 1
	EventLoadFailed
	EventSortChanged
	EventReset
)

// Event is published after every change of the catalog view.
type Event struct {
	Kind EventKind
	// Added is the number of coins appended by a page load.
	Added int
	// Err is set for EventLoadFailed.
	Err error
}

// Service owns the paged coin list. It is safe for concurrent use.
type Service struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
	events  *notify.Broadcaster[Event]

	mu         sync.Mutex
	coins      []coin.Summary // arrival order
	view       []coin.Summary // coins under sort, nil when outdated
	sort       Sort
	offset     int
	inFlight   bool
	terminal   bool
	generation uint64
}

// New creates a catalog over fetcher.
func New(fetcher PageFetcher, config Config) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	defaults := DefaultConfig()
	if config.PageSize == 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxItems == 0 {
		config.MaxItems = defaults.MaxItems
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaults.EventBuffer
	}
	if config.PageSize < 0 || config.MaxItems < 0 {
		return nil, fmt.Errorf("page_size and max_items must be positive (got %d, %d)", config.PageSize, config.MaxItems)
	}

	return &Service{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "catalog").Logger(),
		events:  notify.New[Event](config.EventBuffer),
	}, nil
}

// LoadNextPage fetches the page after the last loaded one and appends it.
// It returns the number of coins appended. While a fetch is outstanding or
// once paging is terminal it does nothing and returns (0, nil). A failed
// fetch leaves the catalog untouched and returns a *FetchError, so calling
// again retries the same page.
func (s *Service) LoadNextPage(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.inFlight || s.terminal {
		s.mu.Unlock()
		return 0, nil
	}
	s.inFlight = true
	offset, limit, gen := s.offset, s.config.PageSize, s.generation
	s.mu.Unlock()

	s.logger.Debug().Int("offset", offset).Int("limit", limit).Msg("Loading page")

	page, err := s.fetcher.ListCoins(ctx, limit, offset)

	s.mu.Lock()
	s.inFlight = false

	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Int("offset", offset).Msg("Discarding page fetched before reset")
		return 0, nil
	}

	if err != nil {
		s.mu.Unlock()
		catalogPageErrorsTotal.Inc()
		fetchErr := &FetchError{Offset: offset, Limit: limit, Err: err}
		s.logger.Warn().Err(err).Int("offset", offset).Int("limit", limit).Msg("Page fetch failed")
		s.events.Publish(Event{Kind: EventLoadFailed, Err: fetchErr})
		return 0, fetchErr
	}

	received := page.Coins
	if room := s.config.MaxItems - len(s.coins); len(received) > room {
		received = received[:room]
	}

	s.coins = append(s.coins, received...)
	s.view = nil
	s.offset += limit
	s.terminal = len(page.Coins) < limit || len(s.coins) >= s.config.MaxItems ||
		(page.Pagination != nil && page.Pagination.HasNextPage != nil && !*page.Pagination.HasNextPage)
	loaded, terminal := len(s.coins), s.terminal
	s.mu.Unlock()

	catalogPagesLoadedTotal.Inc()
	catalogItemsLoaded.Set(float64(loaded))

	s.logger.Info().
		Int("offset", offset).
		Int("received", len(received)).
		Int("loaded", loaded).
		Bool("terminal", terminal).
		Msg("Page loaded")

	s.events.Publish(Event{Kind: EventPageLoaded, Added: len(received)})
	return len(received), nil
}

// Reset drops the list and paging state. A page that is still in flight is
// discarded when it lands; until then LoadNextPage stays a no-op. The
// current sort is kept.
func (s *Service) Reset() {
	s.mu.Lock()
	s.coins = nil
	s.view = nil
	s.offset = 0
	s.terminal = false
	s.generation++
	s.mu.Unlock()

	catalogItemsLoaded.Set(0)
	s.logger.Debug().Msg("Catalog reset")
	s.events.Publish(Event{Kind: EventReset})
}

// SetSort changes the view order. It never triggers a fetch.
func (s *Service) SetSort(by Sort) error {
	if !by.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownSort, by)
	}

	s.mu.Lock()
	if s.sort == by {
		s.mu.Unlock()
		return nil
	}
	s.sort = by
	s.view = nil
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventSortChanged})
	return nil
}

// Sort returns the current view order.
func (s *Service) Sort() Sort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sort
}

// Coins returns a copy of the list under the current sort.
func (s *Service) Coins() []coin.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sortedLocked())
}

// Filter returns the coins under the current sort whose name or symbol
// contains query, ignoring case. An empty query returns all coins.
func (s *Service) Filter(query string) []coin.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(filterCoins(s.sortedLocked(), query))
}

func (s *Service) sortedLocked() []coin.Summary {
	if s.view == nil {
		s.view = sortCoins(s.coins, s.sort)
	}
	return s.view
}

// State returns the paging bookkeeping.
func (s *Service) State() PagingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PagingState{
		Offset:   s.offset,
		PageSize: s.config.PageSize,
		Loaded:   len(s.coins),
		InFlight: s.inFlight,
		Terminal: s.terminal,
	}
}

// Subscribe registers for catalog events. The returned function unsubscribes.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}
