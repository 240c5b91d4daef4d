package interceptors

import (
	"context"
	"time"
)

// Timeout returns an interceptor that bounds each attempt by the duration
// timeoutFor returns for its key. A duration ≤ 0 leaves the attempt
// unbounded.
func Timeout[T any](timeoutFor func(key string) time.Duration) Interceptor[T] {
	return func(ctx context.Context, key string, next Handler[T]) (T, error) {
		d := timeoutFor(key)
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
