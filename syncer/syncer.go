// Package syncer implements the data synchronization cache behind the
// dashboard screens. It preloads the collections of every discovered
// key in parallel at startup, memoizes them with a TTL, coalesces
// concurrent fetches for the same key, and supports soft (single key)
// and hard (global) invalidation.
package syncer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/pulsedesk/pulsedesk/syncer/cache"
)

const (
	defaultTTL                = 5 * time.Minute
	defaultPreloadConcurrency = 8
)

// Config configures a Syncer.
type Config[T any] struct {
	// Source provides the two upstream operations. Required.
	Source Source[T]

	// TTL is how long a cached entry is considered fresh (default: 5m).
	TTL time.Duration

	// PreloadConcurrency bounds the startup fan-out (default: 8).
	PreloadConcurrency int64

	// CountItem reports whether an item counts toward the per-key
	// badge (e.g. "unread"). When nil, every item counts.
	CountItem func(T) bool

	// Now is the clock used for freshness accounting. Tests inject a
	// fake; nil means time.Now.
	Now func() time.Time
}

// Syncer owns the cache store and all mutation of it. It is safe for
// concurrent use.
type Syncer[T any] struct {
	source    Source[T]
	ttl       time.Duration
	preload   int64
	countItem func(T) bool
	now       func() time.Time

	store   *cache.Store[T]
	sf      singleflight.Group
	metrics Metrics

	mu          sync.Mutex
	keys        []string
	counts      map[string]int
	active      string
	generations map[string]uint64
	initialized bool
	loading     bool
	lastErr     error
}

// Account is one discovered key with its derived badge count.
type Account struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Cached bool   `json:"cached"`
}

// Snapshot is the read contract exposed to consumers: the discovered
// accounts with per-key counts, the active key and its items, and the
// current loading/error state.
type Snapshot[T any] struct {
	Accounts    []Account `json:"accounts"`
	ActiveKey   string    `json:"active_key"`
	Items       []T       `json:"items"`
	Loading     bool      `json:"loading"`
	Error       string    `json:"error,omitempty"`
	Initialized bool      `json:"initialized"`
}

// New creates a Syncer. The store is owned by the returned value; no
// other component mutates it directly.
func New[T any](cfg Config[T]) *Syncer[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = defaultPreloadConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Syncer[T]{
		source:      cfg.Source,
		ttl:         cfg.TTL,
		preload:     cfg.PreloadConcurrency,
		countItem:   cfg.CountItem,
		now:         cfg.Now,
		store:       cache.NewStore[T](),
		counts:      make(map[string]int),
		generations: make(map[string]uint64),
	}
}

// FetchForKey fetches the items for one key and writes them through to
// the store. Concurrent calls for the same key are coalesced: callers
// arriving while a fetch is in flight await the shared outcome rather
// than reading possibly-absent cached data. On failure the store is
// left untouched and the error is returned to every waiting caller.
func (s *Syncer[T]) FetchForKey(ctx context.Context, key string) ([]T, error) {
	v, err, shared := s.sf.Do(key, func() (any, error) {
		s.metrics.RecordFetch()

		items, err := s.source.FetchItems(ctx, key)
		if err != nil {
			s.metrics.RecordFetchFailure()
			return nil, &FetchError{Key: key, Err: err}
		}

		// The timestamp is captured at resolution time so concurrent
		// fetches for different keys cannot corrupt each other's
		// freshness accounting.
		s.store.Put(key, items, s.now())
		s.publishCount(key, items)
		return items, nil
	})
	if shared {
		s.metrics.RecordCoalesced()
	}
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// Initialize discovers the key set and preloads every key concurrently.
// A discovery failure is terminal: no keys, nothing to preload. Per-key
// fetch failures are independent; a failing key simply has no entry
// afterward and is retried lazily on first access. Initialization is
// complete once the fan-out settles, regardless of individual outcomes.
func (s *Syncer[T]) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	keys, err := s.source.ListKeys(ctx)
	if err != nil {
		derr := &DiscoveryError{Err: err}
		s.mu.Lock()
		s.lastErr = derr
		s.mu.Unlock()
		return derr
	}

	s.mu.Lock()
	s.keys = slices.Clone(keys)
	s.mu.Unlock()

	if len(keys) == 0 {
		s.finishInitialize()
		return nil
	}

	sem := semaphore.NewWeighted(s.preload)
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				slog.Warn("preload aborted", "key", key, "error", err)
				return
			}
			defer sem.Release(1)

			if _, err := s.FetchForKey(ctx, key); err != nil {
				slog.Warn("preload fetch failed", "key", key, "error", err)
			}
		}(key)
	}
	wg.Wait()

	s.finishInitialize()
	slog.Info("sync initialized", "keys", len(keys), "cached", s.store.Len())
	return nil
}

func (s *Syncer[T]) finishInitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.lastErr = nil
	if s.active == "" && len(s.keys) > 0 {
		s.active = s.keys[0]
	}
}

// SetActive changes the focused key. A fresh cache entry is served
// without a network call. Before initialization completes the change is
// recorded but no fetch is issued, so it cannot race the preloader. A
// result resolving after the key was switched away again is discarded.
// Setting the current active key again is a no-op.
func (s *Syncer[T]) SetActive(ctx context.Context, key string) error {
	s.mu.Lock()
	if key == s.active {
		s.mu.Unlock()
		return nil
	}
	if s.initialized && !slices.Contains(s.keys, key) {
		s.mu.Unlock()
		return ErrUnknownKey
	}
	s.active = key
	s.generations[key]++
	gen := s.generations[key]
	initialized := s.initialized
	s.mu.Unlock()

	if s.store.IsFresh(key, s.now(), s.ttl) {
		s.metrics.RecordHit()
		s.publishState(false, nil)
		return nil
	}
	s.metrics.RecordMiss()

	if !initialized {
		return nil
	}

	s.publishState(true, nil)
	_, err := s.FetchForKey(ctx, key)

	s.mu.Lock()
	stale := s.active != key || s.generations[key] != gen
	s.mu.Unlock()
	if stale {
		s.metrics.RecordStaleDrop()
		return nil
	}

	s.publishState(false, err)
	return err
}

// Refresh re-fetches the active key. With force it first clears every
// cached entry; other keys are then re-fetched lazily on their next
// activation, which bounds a forced refresh to one network call.
func (s *Syncer[T]) Refresh(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	key := s.active
	if key == "" {
		s.mu.Unlock()
		return ErrNoActiveKey
	}
	if force {
		s.counts = make(map[string]int)
	} else {
		delete(s.counts, key)
	}
	s.generations[key]++
	gen := s.generations[key]
	s.mu.Unlock()

	if force {
		s.store.InvalidateAll()
	} else {
		s.store.Invalidate(key)
	}

	s.publishState(true, nil)
	_, err := s.FetchForKey(ctx, key)

	s.mu.Lock()
	stale := s.active != key || s.generations[key] != gen
	s.mu.Unlock()
	if stale {
		s.metrics.RecordStaleDrop()
		return nil
	}

	s.publishState(false, err)
	return err
}

// Snapshot returns the current published state.
func (s *Syncer[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	keys := slices.Clone(s.keys)
	active := s.active
	loading := s.loading
	lastErr := s.lastErr
	initialized := s.initialized
	counts := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	s.mu.Unlock()

	accounts := make([]Account, 0, len(keys))
	for _, key := range keys {
		_, cached := s.store.Get(key)
		accounts = append(accounts, Account{
			Key:    key,
			Count:  counts[key],
			Cached: cached,
		})
	}

	snapshot := Snapshot[T]{
		Accounts:    accounts,
		ActiveKey:   active,
		Loading:     loading,
		Initialized: initialized,
	}
	if lastErr != nil {
		snapshot.Error = lastErr.Error()
	}
	if active != "" {
		if entry, ok := s.store.Get(active); ok {
			snapshot.Items = entry.Items
		}
	}
	return snapshot
}

// Peek returns the cached items and fetch time for a key without
// triggering a fetch.
func (s *Syncer[T]) Peek(key string) ([]T, time.Time, bool) {
	entry, ok := s.store.Get(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return entry.Items, entry.FetchedAt, true
}

// Keys returns the discovered key set.
func (s *Syncer[T]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.keys)
}

// ActiveKey returns the currently focused key, or "" if none.
func (s *Syncer[T]) ActiveKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Initialized reports whether the startup preload has settled.
func (s *Syncer[T]) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Metrics returns the counter block for this syncer.
func (s *Syncer[T]) Metrics() *Metrics {
	return &s.metrics
}

// publishCount recomputes the badge count for key from items.
func (s *Syncer[T]) publishCount(key string, items []T) {
	count := len(items)
	if s.countItem != nil {
		count = 0
		for _, item := range items {
			if s.countItem(item) {
				count++
			}
		}
	}

	s.mu.Lock()
	s.counts[key] = count
	s.mu.Unlock()
}

func (s *Syncer[T]) publishState(loading bool, err error) {
	s.mu.Lock()
	s.loading = loading
	s.lastErr = err
	s.mu.Unlock()
}
