package interceptors

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Recovery returns an interceptor that turns a panic in the rest of the
// chain into an error, so the caller and the circuit breaker see a normal
// failure instead of a crashed goroutine.
func Recovery[T any](log *zap.Logger) Interceptor[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, key string, next Handler[T]) (resp T, err error) {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				resp = zero
				err = fmt.Errorf("interceptors: fetch for %q panicked: %v", key, r)
				log.Error("fetch panicked",
					zap.String("key", key),
					zap.Any("panic", r),
					zap.StackSkip("stack", 2),
				)
			}
		}()
		return next(ctx)
	}
}
