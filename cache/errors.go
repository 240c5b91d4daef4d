package cache

import (
	"fmt"
	"time"
)

// ErrCreate wraps a failure to build the underlying store.
func ErrCreate(err error) error {
	return fmt.Errorf("cache: failed to create store: %w", err)
}

// ErrInvalidPattern wraps an invalidation pattern that does not compile.
func ErrInvalidPattern(pattern string, err error) error {
	return fmt.Errorf("cache: invalid pattern %q: %w", pattern, err)
}

// ErrInvalidMaxEntries returns an error for a non-positive capacity.
func ErrInvalidMaxEntries(n int64) error {
	return fmt.Errorf("cache: invalid max entries: %d (must be >= 1)", n)
}

// ErrInvalidTTL returns an error for a non-positive default TTL.
func ErrInvalidTTL(ttl time.Duration) error {
	return fmt.Errorf("cache: invalid default ttl: %v (must be > 0)", ttl)
}
