// Package favorites keeps the user's favorite coin ids: an ordered set,
// persisted to a kv slot on every change, with change notification.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/coin-catalog/internal/notify"
	"github.com/Sternrassler/coin-catalog/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the kv slot holding the JSON array of favorite ids.
const DefaultKey = "favorite_coins"

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 16

var (
	// ErrEmptyID is returned for an empty coin id.
	ErrEmptyID = errors.New("favorites: empty coin id")

	// ErrPersist wraps storage failures on Add and Remove. The in-memory set
	// is left as it was before the call.
	ErrPersist = errors.New("favorites: persist failed")

	// ErrNoStorage is returned by New without a kv.Store.
	ErrNoStorage = errors.New("favorites: storage is required")
)

var (
	favoritesCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coin_favorites_count",
		Help: "Number of coins in the favorites set",
	})

	favoritesPersistErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_favorites_persist_errors_total",
		Help: "Total number of failed favorites writes",
	})

	favoritesEventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_favorites_events_dropped_total",
		Help: "Total number of change events dropped because a subscriber buffer was full",
	})
)

// EventKind tells what happened to an id.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is published after a change has been persisted.
type Event struct {
	Kind EventKind
	ID   string
}

// Store is the favorites set. It is safe for concurrent use.
type Store struct {
	storage    kv.Store
	key        string
	bufferSize int
	logger     zerolog.Logger

	mu     sync.Mutex
	loaded bool
	ids    []string
	index  map[string]struct{}

	events *notify.Broadcaster[Event]
}

// Option configures a Store.
type Option func(*Store)

// WithKey stores the set under a different slot.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithBufferSize sets the per-subscriber event buffer.
func WithBufferSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store on top of storage. Nothing is read until first use.
func New(storage kv.Store, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, ErrNoStorage
	}
	s := &Store{
		storage:    storage,
		key:        DefaultKey,
		bufferSize: DefaultBufferSize,
		logger:     log.With().Str("component", "favorites").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = notify.New[Event](s.bufferSize)
	return s, nil
}

// ensureLoaded reads the slot once. A failed read is retried on the next
// call. Must be called with mu held.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	stored, err := kv.GetStrings(ctx, s.storage, s.key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("Failed to load favorites")
		return fmt.Errorf("load favorites: %w", err)
	}

	ids := make([]string, 0, len(stored))
	index := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		if id == "" {
			continue
		}
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = struct{}{}
		ids = append(ids, id)
	}

	s.ids, s.index, s.loaded = ids, index, true
	favoritesCount.Set(float64(len(ids)))

	s.logger.Debug().Int("count", len(ids)).Msg("Favorites loaded")
	return nil
}

// IsFavorite reports whether id is in the set.
func (s *Store) IsFavorite(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	_, ok := s.index[id]
	return ok, nil
}

// Add inserts id and persists the set. Adding a present id is a no-op.
func (s *Store) Add(ctx context.Context, id string) error {
	return s.set(ctx, id, true)
}

// Remove deletes id and persists the set. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.set(ctx, id, false)
}

// Toggle flips the membership of id and returns the new membership.
func (s *Store) Toggle(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	_, present := s.index[id]
	if err := s.apply(ctx, id, !present); err != nil {
		return present, err
	}
	return !present, nil
}

// All returns the favorite ids in insertion order.
func (s *Store) All(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), s.ids...), nil
}

func (s *Store) set(ctx context.Context, id string, want bool) error {
	if id == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, present := s.index[id]; present == want {
		return nil
	}
	return s.apply(ctx, id, want)
}

// apply persists the set with id added or removed and, only once the write
// succeeded, commits it in memory and notifies. Must be called with mu held.
func (s *Store) apply(ctx context.Context, id string, add bool) error {
	next := make([]string, 0, len(s.ids)+1)
	kind := EventRemoved
	if add {
		next = append(next, s.ids...)
		next = append(next, id)
		kind = EventAdded
	} else {
		for _, existing := range s.ids {
			if existing != id {
				next = append(next, existing)
			}
		}
	}

	if err := kv.PutStrings(ctx, s.storage, s.key, next); err != nil {
		favoritesPersistErrorsTotal.Inc()
		s.logger.Error().
			Err(err).
			Str("coin_id", id).
			Str("op", kind.String()).
			Msg("Failed to persist favorites")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.ids = next
	if add {
		s.index[id] = struct{}{}
	} else {
		delete(s.index, id)
	}
	favoritesCount.Set(float64(len(next)))

	s.logger.Debug().Str("coin_id", id).Str("op", kind.String()).Int("count", len(next)).Msg("Favorites changed")

	s.publish(Event{Kind: kind, ID: id})
	return nil
}

// Subscribe registers for change events. The returned function unsubscribes
// and closes the channel. Events are dropped for a subscriber whose buffer
// is full; each event only means "the set changed".
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

func (s *Store) publish(ev Event) {
	if dropped := s.events.Publish(ev); dropped > 0 {
		favoritesEventsDroppedTotal.Add(float64(dropped))
	}
}
