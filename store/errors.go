package store

import (
	"fmt"
	"time"
)

// ErrInvalidDebounce returns an error for a negative debounce delay.
func ErrInvalidDebounce(d time.Duration) error {
	return fmt.Errorf("store: invalid debounce: %v (must be >= 0)", d)
}

// ErrInvalidEvictFraction returns an error for an eviction share outside (0, 1].
func ErrInvalidEvictFraction(f float64) error {
	return fmt.Errorf("store: invalid evict fraction: %v (must be in (0, 1])", f)
}

// ErrEncode wraps a value that could not be serialized.
func ErrEncode(key string, err error) error {
	return fmt.Errorf("store: encode %q: %w", key, err)
}
