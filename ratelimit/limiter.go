// Package ratelimit paces outgoing fetches with a token bucket backed by
// golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Config describes a token bucket.
type Config struct {
	// RPS is the sustained number of fetches per second. Zero or less
	// disables limiting.
	RPS float64 `mapstructure:"rps"`
	// Burst is the number of fetches allowed back to back.
	// default: 1
	Burst int `mapstructure:"burst"`
}

// Limiter gates outgoing fetches. A nil *Limiter admits everything.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps fetches per second with the
// given burst size. rps ≤ 0 returns nil, which never limits.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

// FromConfig is NewLimiter over a Config.
func FromConfig(cfg Config) *Limiter {
	return NewLimiter(cfg.RPS, cfg.Burst)
}

// Allow reports whether a fetch may proceed right now without waiting.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}

// Wait blocks until a fetch may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ratelimit: %w", err)
	}
	return nil
}
