package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Keksclan/goRawrFeed/errkind"
)

// Backend is the durable key-value storage behind a Store. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val under key. It returns an error wrapping
	// ErrQuotaExceeded when the backend is out of space.
	Set(ctx context.Context, key string, val []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases the backend.
	Close() error
}

var (
	// ErrNotFound is returned by Backend.Get for a missing key.
	ErrNotFound = errors.New("store: key not found")

	// ErrQuotaExceeded is returned by Backend.Set when the backend is full.
	ErrQuotaExceeded = fmt.Errorf("store: %w", errkind.ErrQuotaExceeded)

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store: store is closed")
)

// IsQuotaExceeded reports whether err is a quota failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, errkind.ErrQuotaExceeded)
}
