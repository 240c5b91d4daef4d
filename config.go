package gorawrfeed

import (
	"slices"
	"strings"

	"github.com/Keksclan/goRawrFeed/breaker"
	"github.com/Keksclan/goRawrFeed/cache"
	"github.com/Keksclan/goRawrFeed/logger"
	"github.com/Keksclan/goRawrFeed/queue"
	"github.com/Keksclan/goRawrFeed/ratelimit"
	"github.com/Keksclan/goRawrFeed/retry"
	"github.com/Keksclan/goRawrFeed/store"
	"github.com/spf13/viper"
)

// Backend kinds understood by [BackendConfig].
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
	BackendFile   = "file"
)

var validBackends = []string{BackendMemory, BackendPebble, BackendRedis, BackendFile}

// BackendConfig selects and configures the durable store backend.
type BackendConfig struct {
	// Kind is one of memory, pebble, redis, file.
	// default: "memory"
	Kind string `mapstructure:"kind"`
	// Path is the directory of the pebble and file backends.
	Path string `mapstructure:"path"`
	// MaxBytes is the quota of the memory, pebble and file backends.
	// Zero means unlimited.
	MaxBytes int64 `mapstructure:"max_bytes"`
	// RedisAddr, RedisPassword and RedisDB configure the redis backend.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Config aggregates the configuration of every component of a [Core].
type Config struct {
	Logger    logger.Config    `mapstructure:"logger"`
	Cache     cache.Config     `mapstructure:"cache"`
	Images    queue.Config     `mapstructure:"images"`
	Store     store.Config     `mapstructure:"store"`
	Backend   BackendConfig    `mapstructure:"backend"`
	Retry     retry.Config     `mapstructure:"retry"`
	Breaker   breaker.Config   `mapstructure:"breaker"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
	// PruneSchedule is the cron spec of the periodic cache sweep.
	// default: "@every 60s"
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// DefaultConfig returns a configuration with an in-memory backend and the
// defaults of every component.
func DefaultConfig() *Config {
	return &Config{
		Logger:        *logger.DefaultConfig(),
		Cache:         *cache.DefaultConfig(),
		Images:        *queue.DefaultConfig(),
		Store:         *store.DefaultConfig(),
		Backend:       BackendConfig{Kind: BackendMemory},
		Retry:         retry.DefaultConfig(),
		Breaker:       breaker.DefaultConfig(),
		PruneSchedule: "@every 60s",
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Images.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if !slices.Contains(validBackends, c.Backend.Kind) {
		return ErrUnknownBackend(c.Backend.Kind)
	}
	if (c.Backend.Kind == BackendPebble || c.Backend.Kind == BackendFile) && c.Backend.Path == "" {
		return ErrMissingBackendPath(c.Backend.Kind)
	}
	if c.Backend.Kind == BackendRedis && c.Backend.RedisAddr == "" {
		return ErrMissingRedisAddr()
	}
	if c.PruneSchedule == "" {
		return ErrInvalidSchedule(c.PruneSchedule, nil)
	}
	return nil
}

// envKeys are the settings that can be overridden through RAWRFEED_*
// environment variables, e.g. RAWRFEED_BACKEND_KIND.
var envKeys = []string{
	"logger.level", "logger.encoding",
	"cache.max_entries", "cache.default_ttl",
	"images.max_concurrent",
	"store.prefix", "store.debounce", "store.coalesce_writes", "store.evict_fraction",
	"backend.kind", "backend.path", "backend.max_bytes",
	"backend.redis_addr", "backend.redis_password", "backend.redis_db",
	"retry.max_retries", "retry.initial_delay", "retry.max_delay", "retry.jitter",
	"breaker.failure_threshold", "breaker.open_timeout", "breaker.half_open_probes",
	"rate_limit.rps", "rate_limit.burst",
	"prune_schedule",
}

// LoadConfig reads the configuration file at path (any format viper
// understands) over [DefaultConfig], then applies RAWRFEED_* environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAWRFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, ErrReadConfig(path, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ErrReadConfig(path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ErrReadConfig(path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
