// Package dedupe collapses concurrent identical requests into a single
// in-flight fetch.
//
// Unlike a plain singleflight, the shared fetch is detached from any one
// caller's context: each caller waits on its own context, and the fetch is
// cancelled only when every caller waiting on it has given up.
package dedupe

import (
	"context"
	"fmt"
	"sync"

	"github.com/Keksclan/goRawrFeed/metrics"
)

// Fetcher produces the value for a key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// call is one in-flight fetch shared by every caller for its key.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error

	waiters int
	cancel  context.CancelFunc
}

// Group deduplicates fetches by key. The zero value is ready to use.
type Group[T any] struct {
	// Name labels the group's metrics.
	Name string

	mu    sync.Mutex
	calls map[string]*call[T]
}

// Do returns the result of fetcher for key. If a fetch for key is already in
// flight, Do waits for it instead of calling fetcher again, and every caller
// observes the same value or the same error.
//
// The registration for key is removed as soon as the fetch settles, before
// any caller returns, so a later Do starts a fresh fetch.
//
// If ctx is done before the fetch settles, Do returns ctx.Err() for this
// caller only.
func (g *Group[T]) Do(ctx context.Context, key string, fetcher Fetcher[T]) (T, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	c, ok := g.calls[key]
	if ok {
		c.waiters++
		g.mu.Unlock()
		metrics.IncDedupeCollapsed(g.Name)
		return g.wait(ctx, key, c)
	}

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c = &call[T]{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	g.calls[key] = c
	g.mu.Unlock()
	metrics.IncDedupeStarted(g.Name)

	go g.run(fetchCtx, key, c, fetcher)

	return g.wait(ctx, key, c)
}

// run executes fetcher and publishes its result.
func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fetcher Fetcher[T]) {
	defer c.cancel()
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("dedupe: fetcher for %q panicked: %v", key, r)
		}

		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()

		close(c.done)
	}()

	c.val, c.err = fetcher(ctx)
}

func (g *Group[T]) wait(ctx context.Context, key string, c *call[T]) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
	}

	g.mu.Lock()
	c.waiters--
	abandoned := c.waiters == 0
	if abandoned && g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	if abandoned {
		c.cancel()
	}

	var zero T
	return zero, ctx.Err()
}

// InFlight returns the number of keys with a pending fetch.
func (g *Group[T]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Forget drops the registration for key so the next Do starts a new fetch.
// Callers already waiting keep waiting on the old one.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}
