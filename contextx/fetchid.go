package contextx

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// NewFetchID returns a new, lexically sortable fetch ID.
func NewFetchID() string {
	return ulid.Make().String()
}

// WithFetchID returns a derived context that carries the given fetch ID.
func WithFetchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, fetchIDKey, id)
}

// FetchIDFromContext extracts the fetch ID stored in ctx.
// It returns an empty string when no fetch ID is present.
func FetchIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(fetchIDKey).(string)
	return id
}

// EnsureFetchID returns ctx unchanged if it already carries a fetch ID, and
// otherwise a derived context with a new one.
func EnsureFetchID(ctx context.Context) (context.Context, string) {
	if id := FetchIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewFetchID()
	return WithFetchID(ctx, id), id
}
