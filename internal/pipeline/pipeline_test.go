package pipeline

import (
	"context"
	"testing"

	"github.com/Keksclan/goRawrFeed/interceptors"
)

func tag(name string, log *[]string) interceptors.Interceptor[int] {
	return func(ctx context.Context, key string, next interceptors.Handler[int]) (int, error) {
		*log = append(*log, name)
		return next(ctx)
	}
}

func TestBuilderSortsByOrder(t *testing.T) {
	var log []string
	var b Builder[int]
	b.Add(OrderRecovery, tag("recovery", &log))
	b.Add(OrderUser, tag("user1", &log))
	b.Add(OrderBreaker, tag("breaker", &log))
	b.Add(OrderUser, tag("user2", &log))
	b.Add(OrderTimeout, nil)
	b.Add(OrderRateLimit, tag("ratelimit", &log))

	v, err := b.Build()(t.Context(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("got (%d, %v), want (7, nil)", v, err)
	}

	want := []string{"breaker", "ratelimit", "user1", "user2", "recovery"}
	if len(log) != len(want) {
		t.Fatalf("order = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("order = %v, want %v", log, want)
		}
	}
}

func TestEmptyBuilder(t *testing.T) {
	var b Builder[int]
	v, err := b.Build()(t.Context(), "k", func(context.Context) (int, error) { return 1, nil })
	if err != nil || v != 1 {
		t.Fatalf("got (%d, %v), want (1, nil)", v, err)
	}
}
