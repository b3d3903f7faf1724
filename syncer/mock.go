package syncer

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockSource is an in-memory Source implementation for testing.
type MockSource[T any] struct {
	mu    sync.Mutex
	keys  []string
	items map[string][]T
	errs  map[string]error

	listErr error

	listCalls  atomic.Int64
	fetchCalls map[string]*atomic.Int64

	// gate, when set, is closed by the test to release in-flight
	// FetchItems calls. Used to hold fetches open deliberately.
	gate chan struct{}
}

// NewMockSource creates a MockSource serving the given keys.
func NewMockSource[T any](keys ...string) *MockSource[T] {
	m := &MockSource[T]{
		keys:       keys,
		items:      make(map[string][]T),
		errs:       make(map[string]error),
		fetchCalls: make(map[string]*atomic.Int64),
	}
	for _, key := range keys {
		m.fetchCalls[key] = &atomic.Int64{}
	}
	return m
}

// SetItems sets the items returned for key.
func (m *MockSource[T]) SetItems(key string, items []T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = items
	if _, ok := m.fetchCalls[key]; !ok {
		m.fetchCalls[key] = &atomic.Int64{}
	}
}

// SetFetchError makes FetchItems fail for key. A nil error clears it.
func (m *MockSource[T]) SetFetchError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, key)
		return
	}
	m.errs[key] = err
}

// SetGate installs a channel that holds FetchItems calls open until
// the test closes it. A nil channel removes the gate for later calls.
func (m *MockSource[T]) SetGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// SetListError makes ListKeys fail.
func (m *MockSource[T]) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FetchCalls returns how many times FetchItems was invoked for key.
func (m *MockSource[T]) FetchCalls(key string) int64 {
	m.mu.Lock()
	counter, ok := m.fetchCalls[key]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return counter.Load()
}

// ListCalls returns how many times ListKeys was invoked.
func (m *MockSource[T]) ListCalls() int64 {
	return m.listCalls.Load()
}

// ListKeys implements Source.
func (m *MockSource[T]) ListKeys(_ context.Context) ([]string, error) {
	m.listCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys, nil
}

// FetchItems implements Source.
func (m *MockSource[T]) FetchItems(ctx context.Context, key string) ([]T, error) {
	m.mu.Lock()
	counter, ok := m.fetchCalls[key]
	if !ok {
		counter = &atomic.Int64{}
		m.fetchCalls[key] = counter
	}
	gate := m.gate
	err := m.errs[key]
	items := m.items[key]
	m.mu.Unlock()

	counter.Add(1)

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return items, nil
}

var _ Source[string] = (*MockSource[string])(nil)
