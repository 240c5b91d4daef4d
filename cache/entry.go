package cache

import "time"

type entry[T any] struct {
	key         string
	data        T
	stored      time.Time
	ttl         time.Duration
	staleWindow time.Duration

	// guarded by Cache.mu
	hits         int64
	revalidating bool
}

// state classifies the entry at now: Fresh while age ≤ ttl, Stale while
// age ≤ ttl+staleWindow, Miss after that.
func (e *entry[T]) state(now time.Time) State {
	age := now.Sub(e.stored)
	switch {
	case age <= e.ttl:
		return Fresh
	case age <= e.ttl+e.staleWindow:
		return Stale
	default:
		return Miss
	}
}
