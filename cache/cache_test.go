package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func mustNew[T any](t *testing.T, clk *fakeClock) *Cache[T] {
	t.Helper()
	c, err := New[T](&Config{Name: t.Name(), MaxEntries: 1000}, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := mustNew[string](t, newFakeClock())

	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected miss")
	}

	c.Set("k1", "v1")
	v, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if v != "v1" {
		t.Fatalf("got %q, want %q", v, "v1")
	}
}

func TestStaleWhileRevalidate_Windows(t *testing.T) {
	clk := newFakeClock()
	c := mustNew[string](t, clk)

	c.SetWithTTL("feed:home", "v", time.Second, 5*time.Second)

	var calls atomic.Int32
	release := make(chan struct{})
	reval := func(_ context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v2", nil
	}

	// Fresh through the whole TTL.
	for _, age := range []time.Duration{0, 500 * time.Millisecond, 500 * time.Millisecond} {
		clk.Advance(age)
		v, st := c.GetOrRevalidate("feed:home", reval)
		if st != Fresh || v != "v" {
			t.Fatalf("age %v: got (%q, %v), want fresh v", age, v, st)
		}
	}
	if calls.Load() != 0 {
		t.Fatal("revalidate must not run while fresh")
	}

	// Just past the TTL: stale, served, one revalidation.
	clk.Advance(time.Millisecond)
	for range 3 {
		v, st := c.GetOrRevalidate("feed:home", reval)
		if st != Stale || v != "v" {
			t.Fatalf("got (%q, %v), want stale v", v, st)
		}
	}
	close(release)
	c.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("revalidate called %d times, want 1", n)
	}

	// The refresh replaced the entry with a new one stored "now".
	v, st := c.GetOrRevalidate("feed:home", reval)
	if st != Fresh || v != "v2" {
		t.Fatalf("after revalidation got (%q, %v), want fresh v2", v, st)
	}
}

func TestStaleWindowBoundaryAndExpiry(t *testing.T) {
	clk := newFakeClock()
	c := mustNew[int](t, clk)
	c.SetWithTTL("k", 1, time.Second, 5*time.Second)

	clk.Advance(6 * time.Second)
	if _, st := c.GetOrRevalidate("k", nil); st != Stale {
		t.Fatalf("age 6000ms: got %v, want stale", st)
	}

	clk.Advance(time.Millisecond)
	if v, ok := c.Get("k"); ok {
		t.Fatalf("age 6001ms: expected miss, got %v", v)
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", c.Len())
	}
}

func TestRevalidationFailureKeepsStale(t *testing.T) {
	clk := newFakeClock()
	c := mustNew[string](t, clk)
	c.SetWithTTL("k", "old", time.Second, 10*time.Second)
	clk.Advance(2 * time.Second)

	var calls atomic.Int32
	failing := func(_ context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("server error")
	}

	v, st := c.GetOrRevalidate("k", failing)
	if st != Stale || v != "old" {
		t.Fatalf("got (%q, %v)", v, st)
	}
	c.Wait()

	// Flag cleared: the next stale read may try again.
	v, st = c.GetOrRevalidate("k", failing)
	if st != Stale || v != "old" {
		t.Fatalf("got (%q, %v) after failed refresh", v, st)
	}
	c.Wait()
	if n := calls.Load(); n != 2 {
		t.Fatalf("revalidate called %d times, want 2", n)
	}
}

func TestRevalidatorPanicIsContained(t *testing.T) {
	clk := newFakeClock()
	c := mustNew[string](t, clk)
	c.SetWithTTL("k", "old", time.Second, 10*time.Second)
	clk.Advance(2 * time.Second)

	c.GetOrRevalidate("k", func(_ context.Context) (string, error) { panic("boom") })
	c.Wait()

	if v, ok := c.Get("k"); !ok || v != "old" {
		t.Fatalf("expected stale entry to survive, got (%q, %v)", v, ok)
	}
}

func TestSetResetsHits(t *testing.T) {
	c := mustNew[string](t, newFakeClock())
	c.Set("k", "a")
	c.Get("k")
	c.Get("k")
	if h, _ := c.Hits("k"); h != 2 {
		t.Fatalf("hits = %d, want 2", h)
	}
	c.Set("k", "b")
	if h, _ := c.Hits("k"); h != 0 {
		t.Fatalf("hits after Set = %d, want 0", h)
	}
}

func TestInvalidate(t *testing.T) {
	c := mustNew[string](t, newFakeClock())
	c.Set("a", "1")
	c.Set("b", "2")
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be invalidated")
	}
	if v, ok := c.Get("b"); !ok || v != "2" {
		t.Fatal("expected b to remain")
	}
}

func TestInvalidatePattern(t *testing.T) {
	c := mustNew[int](t, newFakeClock())
	c.Set("feed:home:30:", 1)
	c.Set("feed:home:30:abc", 2)
	c.Set("feed:popular:30:", 3)
	c.Set("profile:alice", 4)

	n, err := c.InvalidatePattern(`^feed:home:`)
	if err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	for _, k := range []string{"feed:home:30:", "feed:home:30:abc"} {
		if _, ok := c.Get(k); ok {
			t.Fatalf("%s should be gone", k)
		}
	}
	for _, k := range []string{"feed:popular:30:", "profile:alice"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s should remain", k)
		}
	}

	if _, err := c.InvalidatePattern(`(`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestPruneIsStaleWindowAware(t *testing.T) {
	clk := newFakeClock()
	c := mustNew[string](t, clk)
	c.SetWithTTL("short", "x", time.Second, 0)
	c.SetWithTTL("swr", "y", time.Second, 10*time.Second)
	c.SetWithTTL("long", "z", time.Hour, 0)

	clk.Advance(5 * time.Second)
	if n := c.Prune(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, ok := c.Get("swr"); !ok {
		t.Fatal("prune evicted an entry that is still servable as stale")
	}
	if _, ok := c.Get("long"); !ok {
		t.Fatal("prune evicted a fresh entry")
	}

	clk.Advance(10 * time.Second)
	if n := c.Prune(); n != 1 {
		t.Fatalf("second prune removed %d, want 1", n)
	}
}

func TestClear(t *testing.T) {
	c := mustNew[int](t, newFakeClock())
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len = %d after Clear", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New[int](&Config{MaxEntries: -1}); err == nil {
		t.Fatal("expected error for negative MaxEntries")
	}
	if _, err := New[int](&Config{DefaultTTL: -time.Second}); err == nil {
		t.Fatal("expected error for negative TTL")
	}
	c, err := New[int](nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	c.Close()
}
