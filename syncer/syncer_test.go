package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID   string
	Read bool
}

// fakeClock is a manually advanced clock for freshness tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestSyncer(source *MockSource[testItem], clock *fakeClock) *Syncer[testItem] {
	return New(Config[testItem]{
		Source:    source,
		TTL:       5 * time.Minute,
		CountItem: func(item testItem) bool { return !item.Read },
		Now:       clock.Now,
	})
}

func TestInitializePreloadsAllKeys(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a@x.com", "b@x.com")
	source.SetItems("a@x.com", []testItem{{ID: "a1"}, {ID: "a2", Read: true}})
	source.SetItems("b@x.com", []testItem{{ID: "b1"}})

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	assert.True(t, s.Initialized())
	assert.Equal(t, int64(1), source.FetchCalls("a@x.com"))
	assert.Equal(t, int64(1), source.FetchCalls("b@x.com"))

	// First discovered key becomes active.
	assert.Equal(t, "a@x.com", s.ActiveKey())

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Accounts, 2)
	assert.Equal(t, Account{Key: "a@x.com", Count: 1, Cached: true}, snapshot.Accounts[0])
	assert.Equal(t, Account{Key: "b@x.com", Count: 1, Cached: true}, snapshot.Accounts[1])
	assert.Equal(t, []testItem{{ID: "a1"}, {ID: "a2", Read: true}}, snapshot.Items)
	assert.False(t, snapshot.Loading)
	assert.Empty(t, snapshot.Error)
}

func TestInitializeDiscoveryFailure(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]()
	source.SetListError(errors.New("upstream down"))

	s := newTestSyncer(source, newFakeClock())
	err := s.Initialize(ctx)
	require.Error(t, err)

	var derr *DiscoveryError
	assert.ErrorAs(t, err, &derr)
	assert.False(t, s.Initialized())
	assert.Contains(t, s.Snapshot().Error, "upstream down")

	// Recovery is caller-driven: a later attempt may succeed.
	source.SetListError(nil)
	require.NoError(t, s.Initialize(ctx))
	assert.True(t, s.Initialized())
	assert.Empty(t, s.Snapshot().Error)
}

func TestInitializeZeroKeysIsSuccess(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]()

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	assert.True(t, s.Initialized())
	assert.Empty(t, s.ActiveKey())
	assert.Empty(t, s.Snapshot().Accounts)
}

func TestInitializeRunsOnce(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a@x.com")
	source.SetItems("a@x.com", []testItem{{ID: "a1"}})

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))

	assert.Equal(t, int64(1), source.ListCalls())
	assert.Equal(t, int64(1), source.FetchCalls("a@x.com"))
}

func TestPreloadFailuresAreIndependent(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("k1", "k2")
	source.SetFetchError("k1", errors.New("boom"))
	source.SetItems("k2", []testItem{{ID: "x"}})

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx), "per-key failures must not fail initialization")

	_, _, ok := s.Peek("k1")
	assert.False(t, ok, "failed key has no entry")

	items, _, ok := s.Peek("k2")
	require.True(t, ok, "sibling fetch must complete")
	assert.Equal(t, []testItem{{ID: "x"}}, items)
}

func TestFetchForKeyCoalescesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a")
	source.SetItems("a", []testItem{{ID: "a1"}})
	gate := make(chan struct{})
	source.SetGate(gate)

	s := newTestSyncer(source, newFakeClock())

	results := make(chan error, 2)
	go func() {
		_, err := s.FetchForKey(ctx, "a")
		results <- err
	}()

	// Wait for the first fetch to be in flight before issuing the second.
	require.Eventually(t, func() bool {
		return source.FetchCalls("a") == 1
	}, time.Second, time.Millisecond)

	go func() {
		_, err := s.FetchForKey(ctx, "a")
		results <- err
	}()

	// Give the second caller time to join the in-flight fetch, then
	// release it.
	time.Sleep(10 * time.Millisecond)
	close(gate)

	require.NoError(t, <-results)
	require.NoError(t, <-results)

	assert.Equal(t, int64(1), source.FetchCalls("a"), "exactly one underlying call")
	assert.GreaterOrEqual(t, s.Metrics().Snapshot().Coalesced, int64(1))
}

func TestFetchFailurePreservesStaleEntry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	source := NewMockSource[testItem]("a", "b")
	source.SetItems("a", []testItem{{ID: "old"}})
	source.SetItems("b", []testItem{{ID: "b1"}})

	s := newTestSyncer(source, clock)
	require.NoError(t, s.Initialize(ctx))

	// Entry for "a" goes stale, and the upstream starts failing.
	clock.Advance(6 * time.Minute)
	source.SetFetchError("a", errors.New("flaky"))

	require.NoError(t, s.SetActive(ctx, "b"))
	err := s.SetActive(ctx, "a")
	require.Error(t, err)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "a", ferr.Key)

	// The prior entry survives a failed re-fetch.
	items, _, ok := s.Peek("a")
	require.True(t, ok)
	assert.Equal(t, []testItem{{ID: "old"}}, items)

	snapshot := s.Snapshot()
	assert.False(t, snapshot.Loading)
	assert.Contains(t, snapshot.Error, "flaky")
}

func TestSetActiveFreshHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a", "b")
	source.SetItems("a", []testItem{{ID: "a1"}})
	source.SetItems("b", []testItem{{ID: "b1"}})

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.SetActive(ctx, "b"))

	assert.Equal(t, int64(1), source.FetchCalls("b"), "fresh hit issues no new call")
	snapshot := s.Snapshot()
	assert.Equal(t, "b", snapshot.ActiveKey)
	assert.Equal(t, []testItem{{ID: "b1"}}, snapshot.Items)
	assert.False(t, snapshot.Loading)
}

func TestSetActiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	source := NewMockSource[testItem]("a")
	source.SetItems("a", []testItem{{ID: "a1"}})

	s := newTestSyncer(source, clock)
	require.NoError(t, s.Initialize(ctx))

	// Even stale, re-setting the current key must not re-fetch.
	clock.Advance(10 * time.Minute)
	require.NoError(t, s.SetActive(ctx, "a"))
	assert.Equal(t, int64(1), source.FetchCalls("a"))
}

func TestSetActiveRejectsUnknownKey(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a")
	source.SetItems("a", nil)

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	assert.ErrorIs(t, s.SetActive(ctx, "nope"), ErrUnknownKey)
}

func TestSetActiveBeforeInitializeDefers(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a", "b")

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.SetActive(ctx, "b"))

	assert.Equal(t, int64(0), source.FetchCalls("b"), "no fetch races the preloader")
	assert.Equal(t, "b", s.ActiveKey())

	// Initialization keeps the explicitly chosen key.
	require.NoError(t, s.Initialize(ctx))
	assert.Equal(t, "b", s.ActiveKey())
}

func TestSetActiveDiscardsStaleResolution(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	source := NewMockSource[testItem]("a", "b")
	source.SetItems("a", []testItem{{ID: "a1"}})
	source.SetItems("b", []testItem{{ID: "b1"}})

	s := newTestSyncer(source, clock)
	require.NoError(t, s.Initialize(ctx))

	// Make "b" stale so activating it has to fetch, and hold that
	// fetch open.
	clock.Advance(6 * time.Minute)
	gate := make(chan struct{})
	source.SetGate(gate)

	done := make(chan error, 1)
	go func() {
		done <- s.SetActive(ctx, "b")
	}()
	require.Eventually(t, func() bool {
		return source.FetchCalls("b") == 2
	}, time.Second, time.Millisecond)

	// The user switches away before the fetch for "b" resolves. "a" is
	// stale too, but its in-flight fetch is a separate key; release the
	// gate so both resolve.
	source.SetGate(nil)
	require.NoError(t, s.SetActive(ctx, "a"))
	close(gate)

	require.NoError(t, <-done, "superseded resolution is not an error")
	assert.Equal(t, "a", s.ActiveKey())
	assert.GreaterOrEqual(t, s.Metrics().Snapshot().StaleDrops, int64(1))
}

func TestRefreshSoft(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a", "b")
	source.SetItems("a", []testItem{{ID: "a1"}})
	source.SetItems("b", []testItem{{ID: "b1"}})

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	source.SetItems("a", []testItem{{ID: "a1"}, {ID: "a2"}})
	require.NoError(t, s.Refresh(ctx, false))

	assert.Equal(t, int64(2), source.FetchCalls("a"))
	assert.Equal(t, int64(1), source.FetchCalls("b"), "soft refresh touches only the active key")

	items, _, ok := s.Peek("a")
	require.True(t, ok)
	assert.Len(t, items, 2)

	// Sibling entry survives.
	_, _, ok = s.Peek("b")
	assert.True(t, ok)
}

func TestRefreshForceScope(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	source := NewMockSource[testItem]("k1", "k2")
	source.SetItems("k1", []testItem{{ID: "x"}})
	source.SetItems("k2", []testItem{{ID: "y"}})

	s := newTestSyncer(source, clock)
	require.NoError(t, s.Initialize(ctx))
	require.Equal(t, "k1", s.ActiveKey())

	require.NoError(t, s.Refresh(ctx, true))

	// Only the active key was re-fetched; the rest of the store is empty
	// and will be lazily re-fetched on next activation.
	assert.True(t, s.store.IsFresh("k1", clock.Now(), 5*time.Minute))
	_, _, ok := s.Peek("k2")
	assert.False(t, ok)
	assert.Equal(t, int64(2), source.FetchCalls("k1"))
	assert.Equal(t, int64(1), source.FetchCalls("k2"))

	// Activating the evicted key issues exactly one new call.
	require.NoError(t, s.SetActive(ctx, "k2"))
	assert.Equal(t, int64(2), source.FetchCalls("k2"))
}

func TestRefreshRequiresInitialization(t *testing.T) {
	ctx := context.Background()
	s := newTestSyncer(NewMockSource[testItem]("a"), newFakeClock())

	assert.ErrorIs(t, s.Refresh(ctx, false), ErrNotInitialized)
}

func TestRefreshWithoutActiveKey(t *testing.T) {
	ctx := context.Background()
	s := newTestSyncer(NewMockSource[testItem](), newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	assert.ErrorIs(t, s.Refresh(ctx, false), ErrNoActiveKey)
}

// TestTTLScenario is the end-to-end walk from the design notes: two
// accounts, 5 minute TTL, instant switch within TTL, one re-fetch after
// expiry.
func TestTTLScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	source := NewMockSource[testItem]("a@x.com", "b@x.com")
	source.SetItems("a@x.com", []testItem{{ID: "mail-1"}})
	source.SetItems("b@x.com", []testItem{{ID: "mail-2"}})

	s := newTestSyncer(source, clock)
	require.NoError(t, s.Initialize(ctx))

	items, _, ok := s.Peek("a@x.com")
	require.True(t, ok)
	assert.Equal(t, []testItem{{ID: "mail-1"}}, items)

	// Switch within TTL: served instantly, zero new network calls.
	clock.Advance(time.Minute)
	require.NoError(t, s.SetActive(ctx, "b@x.com"))
	assert.Equal(t, int64(1), source.FetchCalls("a@x.com"))
	assert.Equal(t, int64(1), source.FetchCalls("b@x.com"))

	// Six minutes later the entry for the first account has expired.
	clock.Advance(6 * time.Minute)
	require.NoError(t, s.SetActive(ctx, "a@x.com"))
	assert.Equal(t, int64(2), source.FetchCalls("a@x.com"))
}

func TestCountProjection(t *testing.T) {
	ctx := context.Background()
	source := NewMockSource[testItem]("a")
	source.SetItems("a", []testItem{
		{ID: "1", Read: true},
		{ID: "2"},
		{ID: "3"},
	})

	s := newTestSyncer(source, newFakeClock())
	require.NoError(t, s.Initialize(ctx))

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Accounts, 1)
	assert.Equal(t, 2, snapshot.Accounts[0].Count, "only unread items count")
}
