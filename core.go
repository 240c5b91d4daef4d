// Package gorawrfeed wires the data-plumbing core of a social feed client:
// per-resource stale-while-revalidate caches with deduplicated, retried,
// rate-limited upstream fetches, a bounded image load queue, and a debounced
// durable key-value store.
//
// A [Core] owns the shared pieces (store, image queue, logger, tracer and the
// periodic cache sweep). A [Resource] binds a cache and a fetch pipeline for
// one kind of upstream data, such as timelines or profiles.
package gorawrfeed

import (
	"context"
	"net/http"
	"sync"

	"github.com/Keksclan/goRawrFeed/logger"
	"github.com/Keksclan/goRawrFeed/metrics"
	"github.com/Keksclan/goRawrFeed/policy"
	"github.com/Keksclan/goRawrFeed/queue"
	"github.com/Keksclan/goRawrFeed/store"
	"github.com/Keksclan/goRawrFeed/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// pruner is the part of a cache the periodic sweep needs.
type pruner interface {
	Name() string
	Prune() int
	Close()
}

// Core owns the components shared by every Resource.
type Core struct {
	cfg      *Config
	log      *zap.Logger
	tracer   trace.Tracer
	policies *policy.Resolver
	store    *store.Store
	images   *queue.Queue
	cron     *cron.Cron

	mu      sync.Mutex
	caches  []pruner
	started bool
	closed  bool
}

// New builds a Core. Without options it uses [DefaultConfig], a logger built
// from Config.Logger, an in-memory store backend and [DefaultPolicies].
func New(opts ...Option) (*Core, error) {
	o := options{cfg: DefaultConfig(), registerMetrics: true}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := o.log
	if log == nil {
		l, err := logger.New(&cfg.Logger)
		if err != nil {
			return nil, err
		}
		log = l
	}
	if o.registerMetrics {
		metrics.Register()
	}
	if o.policies == nil {
		o.policies = DefaultPolicies()
	}

	backend := o.backend
	if backend == nil {
		b, err := OpenBackend(cfg.Backend)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	st, err := store.New(backend, &cfg.Store, store.WithLogger(logger.Named(log, "store")))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	images, err := queue.New(&cfg.Images, queue.WithLogger(logger.Named(log, "queue")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	c := &Core{
		cfg:      cfg,
		log:      log,
		tracer:   (&tracing.Config{TracerProvider: o.tracerProvider}).Tracer(),
		policies: o.policies,
		store:    st,
		images:   images,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{logger.Named(log, "cron")}))),
	}
	if _, err := c.cron.AddJob(cfg.PruneSchedule, pruneJob{core: c}); err != nil {
		_ = st.Close()
		return nil, ErrInvalidSchedule(cfg.PruneSchedule, err)
	}
	return c, nil
}

// OpenBackend opens the durable backend described by cfg.
func OpenBackend(cfg BackendConfig) (store.Backend, error) {
	switch cfg.Kind {
	case "", BackendMemory:
		return store.NewMemory(int(cfg.MaxBytes)), nil
	case BackendPebble:
		b, err := store.OpenPebble(cfg.Path, cfg.MaxBytes)
		if err != nil {
			return nil, ErrOpenBackend(cfg.Kind, err)
		}
		return b, nil
	case BackendFile:
		b, err := store.NewFile(cfg.Path, cfg.MaxBytes)
		if err != nil {
			return nil, ErrOpenBackend(cfg.Kind, err)
		}
		return b, nil
	case BackendRedis:
		return store.NewRedis(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), nil
	default:
		return nil, ErrUnknownBackend(cfg.Kind)
	}
}

// Start starts the periodic cache sweep. It is safe to call more than once.
func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	c.cron.Start()
	c.log.Info("feed core started",
		zap.String("prune_schedule", c.cfg.PruneSchedule),
		zap.String("backend", c.cfg.Backend.Kind),
	)
}

// Close stops the sweep, closes every registered cache, drops queued image
// loads, and flushes and closes the store.
func (c *Core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	caches := c.caches
	c.caches = nil
	c.mu.Unlock()

	<-c.cron.Stop().Done()
	for _, p := range caches {
		p.Close()
	}
	c.images.Clear()
	err := c.store.Close()
	_ = c.log.Sync()
	return err
}

// Prune sweeps every registered cache and returns the number of entries
// removed.
func (c *Core) Prune() int {
	c.mu.Lock()
	caches := append([]pruner(nil), c.caches...)
	c.mu.Unlock()

	total := 0
	for _, p := range caches {
		total += p.Prune()
	}
	if total > 0 {
		c.log.Debug("cache sweep finished", zap.Int("removed", total))
	}
	return total
}

func (c *Core) register(p pruner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caches = append(c.caches, p)
}

// Store returns the durable key-value store.
func (c *Core) Store() *store.Store { return c.store }

// Images returns the bounded image load queue.
func (c *Core) Images() *queue.Queue { return c.images }

// Logger returns the root logger.
func (c *Core) Logger() *zap.Logger { return c.log }

// Policies returns the key policy resolver shared by every Resource.
func (c *Core) Policies() *policy.Resolver { return c.policies }

// Config returns the configuration the Core was built with.
func (c *Core) Config() *Config { return c.cfg }

// MetricsHandler serves the default Prometheus registry.
func (c *Core) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// LoadImage hands fn to the image queue. It reports whether fn started
// immediately rather than waiting for a free slot.
func (c *Core) LoadImage(ctx context.Context, fn func(context.Context) error) bool {
	return c.images.Go(ctx, fn)
}

var (
	defaultMu   sync.Mutex
	defaultCore *Core
)

// Default returns the process-wide Core, building one with default options
// on first use. It panics if that fails.
func Default() *Core {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCore == nil {
		c, err := New()
		if err != nil {
			panic("rawrfeed: failed to build default core: " + err.Error())
		}
		defaultCore = c
	}
	return defaultCore
}

// SetDefault replaces the process-wide Core and returns the previous one,
// which the caller is responsible for closing.
func SetDefault(c *Core) *Core {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultCore
	defaultCore = c
	return prev
}

type pruneJob struct {
	core *Core
}

func (j pruneJob) Run() {
	j.core.Prune()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
