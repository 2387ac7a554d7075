package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultStaleGrace is how long an expired entry is kept around so it can
// still be revalidated with a conditional request.
const DefaultStaleGrace = 10 * time.Minute

// Manager handles caching operations on top of a Backend.
type Manager struct {
	backend    Backend
	staleGrace time.Duration
}

// NewManager creates a new cache manager.
func NewManager(backend Backend) *Manager {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	return &Manager{
		backend:    backend,
		staleGrace: DefaultStaleGrace,
	}
}

// WithStaleGrace overrides how long expired entries stay revalidatable.
func (m *Manager) WithStaleGrace(d time.Duration) *Manager {
	if d < 0 {
		d = 0
	}
	m.staleGrace = d
	return m
}

// Layer returns the name of the backing store.
func (m *Manager) Layer() string {
	return m.backend.Layer()
}

// Get retrieves a cache entry by key. The entry may be expired; callers
// check Stale and revalidate. Returns ErrCacheMiss if the key is absent.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.backend.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		_ = m.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.Stale() {
		CacheStaleHits.WithLabelValues(m.backend.Layer()).Inc()
	} else {
		CacheHits.WithLabelValues(m.backend.Layer()).Inc()
	}

	return &entry, nil
}

// Set stores a cache entry. The backend keeps it until Expires plus the stale
// grace period. Entries without any lifetime left are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.backend.Set(ctx, key.String(), data, ttl+m.staleGrace); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	CacheWrittenBytes.WithLabelValues(m.backend.Layer()).Add(float64(len(data)))

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.backend.Delete(ctx, key.String()); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return err
	}
	return nil
}

// UpdateTTL moves the expiry of an existing entry, typically after a
// 304 Not Modified response.
func (m *Manager) UpdateTTL(ctx context.Context, key Key, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	entry.Expires = newExpires
	entry.StoredAt = time.Now()

	return m.Set(ctx, key, entry)
}
