package interceptors

import (
	"context"

	"github.com/Keksclan/goRawrFeed/breaker"
)

// Breaker returns an interceptor that rejects attempts with breaker.ErrOpen
// while b is open and records the outcome of every admitted one.
func Breaker[T any](b *breaker.Breaker) Interceptor[T] {
	return func(ctx context.Context, _ string, next Handler[T]) (T, error) {
		return breaker.Execute(b, func() (T, error) {
			return next(ctx)
		})
	}
}
