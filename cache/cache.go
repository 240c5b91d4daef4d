// Package cache provides a time-boxed response cache with
// stale-while-revalidate semantics, backed by an in-process ristretto store.
//
// Every entry has a TTL and a stale window. Within the TTL an entry is fresh.
// Within the following stale window it is still served, and a caller may
// supply a revalidator that refreshes it in the background (at most one
// refresh per entry at a time). Past the stale window the entry is gone.
package cache

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/Keksclan/goRawrFeed/metrics"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// State describes how a lookup was satisfied.
type State int

const (
	Miss State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Revalidator fetches a replacement value for a stale entry.
type Revalidator[T any] func(ctx context.Context) (T, error)

// Cache is a generic stale-while-revalidate cache. All methods are safe for
// concurrent use.
type Cache[T any] struct {
	name       string
	defaultTTL time.Duration
	log        *zap.Logger
	now        func() time.Time

	rc *ristretto.Cache[string, *entry[T]]

	// mu guards idx and the mutable fields of every entry. It is never held
	// across a ristretto call that may block on the policy goroutine.
	mu  sync.Mutex
	idx map[string]*entry[T]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache. A nil cfg uses [DefaultConfig].
func New[T any](cfg *Config, opts ...Option) (*Cache[T], error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[T]{
		name:       cfg.Name,
		defaultTTL: cfg.DefaultTTL,
		log:        o.log.With(zap.String("cache", cfg.Name)),
		now:        o.now,
		idx:        make(map[string]*entry[T]),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	rc, err := ristretto.NewCache(&ristretto.Config[string, *entry[T]]{
		NumCounters:        cfg.MaxEntries * 10,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            c.onDrop,
		OnReject:           c.onDrop,
	})
	if err != nil {
		c.cancel()
		return nil, ErrCreate(err)
	}
	c.rc = rc
	return c, nil
}

// onDrop keeps the key index in sync when ristretto evicts or rejects an
// entry on its own.
func (c *Cache[T]) onDrop(item *ristretto.Item[*entry[T]]) {
	e := item.Value
	if e == nil {
		return
	}
	c.mu.Lock()
	if c.idx[e.key] == e {
		delete(c.idx, e.key)
	}
	c.mu.Unlock()
	metrics.AddCacheEvictions(c.name, "capacity", 1)
}

// Get returns the value for key if it is fresh or within its stale window.
func (c *Cache[T]) Get(key string) (T, bool) {
	v, st := c.lookup(key, nil)
	return v, st != Miss
}

// GetOrRevalidate is like [Cache.Get] but, when the entry is stale and no
// refresh is already running for it, starts revalidate in the background.
// A successful refresh replaces the entry with the same TTL and stale window.
// A failed one leaves the stale entry in place until it expires.
func (c *Cache[T]) GetOrRevalidate(key string, revalidate Revalidator[T]) (T, State) {
	return c.lookup(key, revalidate)
}

func (c *Cache[T]) lookup(key string, revalidate Revalidator[T]) (T, State) {
	var zero T
	e, ok := c.rc.Get(key)
	if !ok {
		metrics.IncCacheLookup(c.name, "miss")
		return zero, Miss
	}

	switch e.state(c.now()) {
	case Fresh:
		c.mu.Lock()
		e.hits++
		c.mu.Unlock()
		metrics.IncCacheLookup(c.name, "fresh")
		return e.data, Fresh

	case Stale:
		c.mu.Lock()
		e.hits++
		start := revalidate != nil && !e.revalidating
		if start {
			e.revalidating = true
		}
		c.mu.Unlock()
		metrics.IncCacheLookup(c.name, "stale")
		if start {
			c.revalidate(e, revalidate)
		}
		return e.data, Stale
	}

	c.drop(e, "expired")
	metrics.IncCacheLookup(c.name, "miss")
	return zero, Miss
}

func (c *Cache[T]) revalidate(e *entry[T], fn Revalidator[T]) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		data, err := c.callRevalidator(fn)
		if err != nil {
			c.mu.Lock()
			e.revalidating = false
			c.mu.Unlock()
			c.log.Warn("revalidation failed, serving stale entry",
				zap.String("key", e.key),
				zap.Error(err),
			)
			metrics.IncCacheRevalidation(c.name, "failed")
			return
		}
		c.SetWithTTL(e.key, data, e.ttl, e.staleWindow)
		metrics.IncCacheRevalidation(c.name, "ok")
	}()
}

func (c *Cache[T]) callRevalidator(fn Revalidator[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: revalidator panicked: %v", r)
		}
	}()
	return fn(c.ctx)
}

// Set stores data under key with the default TTL and no stale window.
func (c *Cache[T]) Set(key string, data T) {
	c.SetWithTTL(key, data, 0, 0)
}

// SetWithTTL stores data under key. A ttl ≤ 0 uses the configured default.
// The entry is always new: its hit count starts at zero.
func (c *Cache[T]) SetWithTTL(key string, data T, ttl, staleWindow time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	staleWindow = max(staleWindow, 0)

	e := &entry[T]{
		key:         key,
		data:        data,
		stored:      c.now(),
		ttl:         ttl,
		staleWindow: staleWindow,
	}

	c.mu.Lock()
	c.idx[key] = e
	c.mu.Unlock()

	if !c.rc.SetWithTTL(key, e, 1, ttl+staleWindow) {
		c.unindex(e)
		return
	}
	c.rc.Wait()
}

// Invalidate removes key immediately.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	_, ok := c.idx[key]
	delete(c.idx, key)
	c.mu.Unlock()

	c.rc.Del(key)
	if ok {
		metrics.AddCacheEvictions(c.name, "invalidate", 1)
	}
}

// InvalidatePattern removes every key matching the regular expression
// pattern and returns how many were removed.
func (c *Cache[T]) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, ErrInvalidPattern(pattern, err)
	}
	return c.InvalidateRegexp(re), nil
}

// InvalidateRegexp removes every key matched by re.
func (c *Cache[T]) InvalidateRegexp(re *regexp.Regexp) int {
	c.mu.Lock()
	var keys []string
	for k := range c.idx {
		if re.MatchString(k) {
			keys = append(keys, k)
			delete(c.idx, k)
		}
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.rc.Del(k)
	}
	metrics.AddCacheEvictions(c.name, "invalidate", len(keys))
	return len(keys)
}

// Prune removes every entry that is past its TTL and its stale window, and
// returns how many were removed. It never removes an entry that Get would
// still serve.
func (c *Cache[T]) Prune() int {
	now := c.now()

	c.mu.Lock()
	var expired []*entry[T]
	for k, e := range c.idx {
		if e.state(now) == Miss {
			expired = append(expired, e)
			delete(c.idx, k)
		}
	}
	c.mu.Unlock()

	for _, e := range expired {
		c.delIfCurrent(e)
	}
	if len(expired) > 0 {
		metrics.AddCacheEvictions(c.name, "prune", len(expired))
		c.log.Debug("pruned expired entries", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Clear removes every entry.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.idx = make(map[string]*entry[T])
	c.mu.Unlock()
	c.rc.Clear()
}

// Len returns the number of indexed entries, including ones that have expired
// but were not yet pruned.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idx)
}

// Hits returns the hit count of the entry currently stored under key.
func (c *Cache[T]) Hits(key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx[key]
	if !ok {
		return 0, false
	}
	return e.hits, true
}

// Name returns the configured cache name.
func (c *Cache[T]) Name() string { return c.name }

// Wait blocks until every background revalidation has finished.
func (c *Cache[T]) Wait() {
	c.wg.Wait()
}

// Close cancels running revalidations, waits for them, and releases the
// underlying store. The cache must not be used afterwards.
func (c *Cache[T]) Close() {
	c.cancel()
	c.wg.Wait()
	c.rc.Close()
}

func (c *Cache[T]) drop(e *entry[T], reason string) {
	if c.unindex(e) {
		metrics.AddCacheEvictions(c.name, reason, 1)
	}
	c.delIfCurrent(e)
}

func (c *Cache[T]) unindex(e *entry[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx[e.key] != e {
		return false
	}
	delete(c.idx, e.key)
	return true
}

// delIfCurrent removes e from the store unless a newer entry replaced it.
func (c *Cache[T]) delIfCurrent(e *entry[T]) {
	if cur, ok := c.rc.Get(e.key); ok && cur == e {
		c.rc.Del(e.key)
	}
}
