package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations that require a
	// completed Initialize call.
	ErrNotInitialized = errors.New("syncer: not initialized")

	// ErrUnknownKey is returned when a key was not part of the
	// discovered key set.
	ErrUnknownKey = errors.New("syncer: unknown key")

	// ErrNoActiveKey is returned by Refresh when no key is active.
	ErrNoActiveKey = errors.New("syncer: no active key")
)

// DiscoveryError wraps a ListKeys failure. Discovery failures are
// terminal for initialization: there are no keys to preload.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover keys: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// FetchError wraps a FetchItems failure for one key. It is local to
// that key: sibling fetches proceed and any previously cached entry
// for the key is left untouched.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch items for %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
