// Package contextx carries per-fetch metadata on a context.Context so that
// logs, spans and metrics emitted deep inside the fetch pipeline can be
// correlated.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	fetchIDKey contextKey = iota
	resourceKey
)
