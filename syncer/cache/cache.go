// Package cache implements the entry store used by the sync layer.
// It maps one key (a connected account) to the items last fetched for
// it, together with the fetch timestamp. The store has no behavior of
// its own beyond bookkeeping; fetching, invalidation policy and
// freshness decisions live in the syncer package.
package cache

import (
	"sync"
	"time"
)

// Entry holds the cached items for one key.
type Entry[T any] struct {
	Items     []T
	FetchedAt time.Time
}

// Store is an in-memory mapping from key to Entry.
// All methods are safe for concurrent use.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
}

// NewStore creates an empty store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{
		entries: make(map[string]Entry[T]),
	}
}

// Get returns the entry for key, if present.
func (s *Store[T]) Get(key string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// Put overwrites the entry for key. now must be the timestamp captured
// when the fetch producing items resolved, not the call time of Put.
func (s *Store[T]) Put(key string, items []T, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry[T]{
		Items:     items,
		FetchedAt: now,
	}
}

// Invalidate removes the entry for key. Removing an absent key is safe.
func (s *Store[T]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// InvalidateAll removes every entry.
func (s *Store[T]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry[T])
}

// IsFresh reports whether key has an entry fetched less than ttl ago.
func (s *Store[T]) IsFresh(key string, now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	return now.Sub(entry.FetchedAt) < ttl
}

// Keys returns the keys that currently have an entry.
func (s *Store[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
