package syncer

import "context"

// Source is the contract between the syncer and the upstream backend.
// The syncer treats items as opaque payloads; anything it needs to know
// about their shape (such as which items count toward a badge) is
// supplied by the caller as a projection function.
type Source[T any] interface {
	// ListKeys returns the current set of keys (connected accounts).
	// Keys are discovered, never created by the syncer.
	ListKeys(ctx context.Context) ([]string, error)

	// FetchItems returns all items for one key. Repeated calls are
	// safe to coalesce; the syncer guarantees at most one call is
	// outstanding per key at any time.
	FetchItems(ctx context.Context, key string) ([]T, error)
}
