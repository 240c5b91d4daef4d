// Package interceptors wraps a single upstream fetch attempt with
// cross-cutting behaviour: panic recovery, circuit breaking, rate limiting
// and per-key timeouts.
package interceptors

import "context"

// Handler performs one upstream fetch attempt.
type Handler[T any] func(ctx context.Context) (T, error)

// Interceptor runs around the attempt for key and decides whether and how
// to call next.
type Interceptor[T any] func(ctx context.Context, key string, next Handler[T]) (T, error)

// Chain composes multiple interceptors into a single one.
// Interceptors execute in the order they appear in the slice.
func Chain[T any](interceptors []Interceptor[T]) Interceptor[T] {
	switch len(interceptors) {
	case 0:
		return func(ctx context.Context, _ string, next Handler[T]) (T, error) {
			return next(ctx)
		}
	case 1:
		return interceptors[0]
	}

	return func(ctx context.Context, key string, handler Handler[T]) (T, error) {
		curr := handler
		for i := len(interceptors) - 1; i > 0; i-- {
			next := curr
			ic := interceptors[i]
			curr = func(ctx context.Context) (T, error) {
				return ic(ctx, key, next)
			}
		}
		return interceptors[0](ctx, key, curr)
	}
}
