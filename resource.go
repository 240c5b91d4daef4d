package gorawrfeed

import (
	"context"
	"regexp"
	"time"

	"github.com/Keksclan/goRawrFeed/breaker"
	"github.com/Keksclan/goRawrFeed/cache"
	"github.com/Keksclan/goRawrFeed/contextx"
	"github.com/Keksclan/goRawrFeed/dedupe"
	"github.com/Keksclan/goRawrFeed/errkind"
	"github.com/Keksclan/goRawrFeed/interceptors"
	"github.com/Keksclan/goRawrFeed/internal/pipeline"
	"github.com/Keksclan/goRawrFeed/logger"
	"github.com/Keksclan/goRawrFeed/metrics"
	"github.com/Keksclan/goRawrFeed/policy"
	"github.com/Keksclan/goRawrFeed/ratelimit"
	"github.com/Keksclan/goRawrFeed/retry"
	"github.com/Keksclan/goRawrFeed/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Fetcher loads the upstream value for one key.
type Fetcher[T any] = dedupe.Fetcher[T]

// ResourceConfig configures one Resource of T.
type ResourceConfig[T any] struct {
	// Name labels the resource's cache, metrics, spans and logs.
	// default: "resource"
	Name string
	// Cache overrides Config.Cache for this resource. Its Name is always
	// replaced by the resource name.
	Cache *cache.Config
	// Policy applies to keys no group of the Core's resolver matches. When
	// zero, the resolver fallback applies. A zero TTL uses the cache default.
	Policy policy.Policy
	// Retry overrides Config.Retry. OnRetry is chained after the built-in
	// hook, not replaced.
	Retry *retry.Config
	// Breaker overrides Config.Breaker.
	Breaker *breaker.Config
	// RateLimit overrides Config.RateLimit.
	RateLimit *ratelimit.Config
	// Interceptors run around every upstream attempt, after the built-in
	// breaker, rate limit and timeout stages and before the fetcher.
	Interceptors []interceptors.Interceptor[T]
	// Clock replaces time.Now for the cache. Tests only.
	Clock func() time.Time
}

// Resource fetches and caches one kind of upstream data. It is safe for
// concurrent use.
type Resource[T any] struct {
	core    *Core
	name    string
	policy  policy.Policy
	cache   *cache.Cache[T]
	group   *dedupe.Group[T]
	retry   retry.Config
	breaker *breaker.Breaker
	attempt interceptors.Interceptor[T]
	tracer  trace.Tracer
	log     *zap.Logger
}

// NewResource creates a Resource bound to core. Its cache is swept by the
// core's prune schedule and closed with the core.
func NewResource[T any](core *Core, cfg ResourceConfig[T]) (*Resource[T], error) {
	if cfg.Name == "" {
		cfg.Name = "resource"
	}
	log := logger.Named(core.log, "resource").With(zap.String("resource", cfg.Name))

	cacheCfg := core.cfg.Cache
	if cfg.Cache != nil {
		cacheCfg = *cfg.Cache
	}
	cacheCfg.Name = cfg.Name
	cacheOpts := []cache.Option{cache.WithLogger(logger.Named(core.log, "cache"))}
	if cfg.Clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(cfg.Clock))
	}
	c, err := cache.New[T](&cacheCfg, cacheOpts...)
	if err != nil {
		return nil, err
	}

	retryCfg := core.cfg.Retry
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	breakerCfg := core.cfg.Breaker
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}
	userHook := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to breaker.State) {
		log.Warn("circuit breaker state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if userHook != nil {
			userHook(from, to)
		}
	}
	rateCfg := core.cfg.RateLimit
	if cfg.RateLimit != nil {
		rateCfg = *cfg.RateLimit
	}

	r := &Resource[T]{
		core:    core,
		name:    cfg.Name,
		policy:  cfg.Policy,
		cache:   c,
		group:   &dedupe.Group[T]{Name: cfg.Name},
		retry:   retryCfg,
		breaker: breaker.New(breakerCfg),
		tracer:  core.tracer,
		log:     log,
	}

	var b pipeline.Builder[T]
	b.Add(pipeline.OrderBreaker, interceptors.Breaker[T](r.breaker))
	b.Add(pipeline.OrderRateLimit, interceptors.RateLimit[T](ratelimit.FromConfig(rateCfg), core.policies))
	b.Add(pipeline.OrderTimeout, interceptors.Timeout[T](func(key string) time.Duration {
		return r.resolve(key).Timeout
	}))
	for _, ic := range cfg.Interceptors {
		b.Add(pipeline.OrderUser, ic)
	}
	b.Add(pipeline.OrderRecovery, interceptors.Recovery[T](log))
	r.attempt = b.Build()
	core.register(c)
	return r, nil
}

// Fetch returns the value for key.
//
// A fresh cached value is returned as is. A stale one is returned
// immediately and refreshed in the background through the same pipeline.
// On a miss, concurrent callers for key share one upstream call. Each
// attempt of that call passes the circuit breaker, the rate limiter and the
// key policy's timeout. Transient failures are retried and a success is
// cached.
func (r *Resource[T]) Fetch(ctx context.Context, key string, fetcher Fetcher[T]) (T, error) {
	start := time.Now()
	ctx, _ = contextx.EnsureFetchID(ctx)
	ctx = contextx.WithResource(ctx, r.name)
	ctx, span := tracing.StartFetch(ctx, r.tracer, r.name, key)
	defer span.End()

	pol := r.resolve(key)
	if !pol.NoCache {
		v, st := r.cache.GetOrRevalidate(key, func(rctx context.Context) (T, error) {
			rctx = contextx.WithFetchID(rctx, contextx.NewFetchID())
			return r.load(rctx, key, pol, fetcher)
		})
		tracing.RecordCache(span, st.String())
		if st != cache.Miss {
			tracing.RecordResult(span, nil)
			metrics.ObserveFetch(r.name, st.String(), time.Since(start))
			return v, nil
		}
	}

	v, err := r.load(ctx, key, pol, fetcher)
	tracing.RecordResult(span, err)
	result := "ok"
	if err != nil {
		result = errkind.KindOf(err).String()
		r.log.Debug("fetch failed",
			zap.String("key", key),
			zap.String("fetch_id", contextx.FetchIDFromContext(ctx)),
			zap.Error(err),
		)
	}
	metrics.ObserveFetch(r.name, result, time.Since(start))
	return v, err
}

// load runs the deduplicated upstream pipeline and caches a success.
func (r *Resource[T]) load(ctx context.Context, key string, pol policy.Policy, fetcher Fetcher[T]) (T, error) {
	handler := interceptors.Handler[T](fetcher)
	return r.group.Do(ctx, key, func(ctx context.Context) (T, error) {
		v, err := retry.Do(ctx, r.retryConfig(ctx, key, pol), func(ctx context.Context) (T, error) {
			return r.attempt(ctx, key, handler)
		})
		if err == nil && !pol.NoCache {
			r.cache.SetWithTTL(key, v, pol.TTL, pol.StaleWindow)
		}
		return v, err
	})
}

func (r *Resource[T]) retryConfig(ctx context.Context, key string, pol policy.Policy) retry.Config {
	cfg := r.retry
	if pol.ReadOnly {
		cfg.ShouldRetry = errkind.RetryableRead
	}
	span := trace.SpanFromContext(ctx)
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.IncRetryAttempt(errkind.KindOf(err).String())
		tracing.RecordRetry(span, attempt, delay, err)
		r.log.Debug("retrying fetch",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return cfg
}

// resolve returns the policy of the best matching resolver group. When no
// group matches, the resource's own policy wins over the resolver fallback.
func (r *Resource[T]) resolve(key string) policy.Policy {
	group, p := r.core.policies.Resolve(key)
	if group == "" && r.policy != (policy.Policy{}) {
		return r.policy
	}
	return p
}

// Peek returns the cached value for key without fetching.
func (r *Resource[T]) Peek(key string) (T, bool) {
	return r.cache.Get(key)
}

// Prime stores v under key as if it had just been fetched.
func (r *Resource[T]) Prime(key string, v T) {
	pol := r.resolve(key)
	r.cache.SetWithTTL(key, v, pol.TTL, pol.StaleWindow)
}

// Invalidate drops key from the cache.
func (r *Resource[T]) Invalidate(key string) {
	r.cache.Invalidate(key)
}

// InvalidatePattern drops every cached key matching the regular expression
// pattern and returns how many were dropped.
func (r *Resource[T]) InvalidatePattern(pattern string) (int, error) {
	return r.cache.InvalidatePattern(pattern)
}

// InvalidatePrefix drops every cached key starting with prefix.
func (r *Resource[T]) InvalidatePrefix(prefix string) int {
	return r.cache.InvalidateRegexp(regexp.MustCompile("^" + regexp.QuoteMeta(prefix)))
}

// Cache exposes the underlying cache.
func (r *Resource[T]) Cache() *cache.Cache[T] { return r.cache }

// Breaker exposes the resource's circuit breaker.
func (r *Resource[T]) Breaker() *breaker.Breaker { return r.breaker }

// Name returns the resource name.
func (r *Resource[T]) Name() string { return r.name }
