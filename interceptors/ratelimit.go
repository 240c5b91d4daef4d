package interceptors

import (
	"context"
	"sync"

	"github.com/Keksclan/goRawrFeed/policy"
	"github.com/Keksclan/goRawrFeed/ratelimit"
)

// rateLimitState holds the resource-wide limiter, an optional policy
// resolver, and a cache of per-group limiters created lazily from resolved
// policies.
type rateLimitState struct {
	global   *ratelimit.Limiter
	resolver *policy.Resolver

	mu     sync.Mutex
	groups map[string]*ratelimit.Limiter
}

// limiterFor returns the per-group limiter when the resolver matches key to
// a group with a RateLimit policy. Otherwise it returns the global limiter.
func (s *rateLimitState) limiterFor(key string) *ratelimit.Limiter {
	name, pol := s.resolver.Resolve(key)
	if name == "" || pol.RateLimit == nil {
		return s.global
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.groups[name]
	if !ok {
		l = ratelimit.FromConfig(*pol.RateLimit)
		s.groups[name] = l
	}
	return l
}

// RateLimit returns an interceptor that waits for a token before every
// attempt. When r matches the key to a group with a RateLimit policy, that
// group's limiter is used; otherwise l applies. Either may be nil.
func RateLimit[T any](l *ratelimit.Limiter, r *policy.Resolver) Interceptor[T] {
	st := &rateLimitState{global: l, resolver: r, groups: make(map[string]*ratelimit.Limiter)}
	return func(ctx context.Context, key string, next Handler[T]) (T, error) {
		if err := st.limiterFor(key).Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return next(ctx)
	}
}
