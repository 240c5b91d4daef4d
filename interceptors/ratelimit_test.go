package interceptors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keksclan/goRawrFeed/policy"
	"github.com/Keksclan/goRawrFeed/ratelimit"
)

// okHandler is a trivial handler that always succeeds.
func okHandler(context.Context) (string, error) { return "ok", nil }

// shortCtx returns a context that gives up long before a nearly-empty bucket
// refills.
func shortCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestRateLimit_GlobalOnly(t *testing.T) {
	global := ratelimit.NewLimiter(0.001, 2) // burst 2, nearly no refill
	ic := RateLimit[string](global, nil)

	// First two should pass (burst).
	for i := range 2 {
		if _, err := ic(t.Context(), "feed:home", okHandler); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third has to wait and gives up.
	_, err := ic(shortCtx(t), "feed:home", okHandler)
	if err == nil {
		t.Fatal("expected the third request to wait past its deadline")
	}
}

func TestRateLimit_PerGroupOverridesGlobal(t *testing.T) {
	// Global: burst=100 (very generous).
	global := ratelimit.NewLimiter(1000, 100)

	// Policy: search keys limited to burst=2 with almost no refill.
	resolver, err := policy.NewResolver(policy.Policy{},
		policy.Group("search").
			Prefix("search:").
			Use(policy.Policy{RateLimit: &ratelimit.Config{RPS: 0.001, Burst: 2}}),
	)
	if err != nil {
		t.Fatal(err)
	}
	ic := RateLimit[string](global, resolver)

	for i := range 2 {
		if _, err := ic(t.Context(), "search:cats", okHandler); err != nil {
			t.Fatalf("search %d: unexpected error: %v", i, err)
		}
	}
	if _, err := ic(shortCtx(t), "search:dogs", okHandler); err == nil {
		t.Fatal("expected search group to be exhausted")
	}

	// Keys outside the group still use the generous global limiter.
	for i := range 10 {
		if _, err := ic(t.Context(), "feed:home", okHandler); err != nil {
			t.Fatalf("feed %d: unexpected error: %v", i, err)
		}
	}
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	ic := RateLimit[string](nil, nil)
	for range 50 {
		if _, err := ic(t.Context(), "k", okHandler); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestRateLimit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	ic := RateLimit[string](nil, nil)
	if _, err := ic(ctx, "k", okHandler); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
