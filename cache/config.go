package cache

import (
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for a Cache.
type Config struct {
	// Name labels logs and metrics.
	// default: "default"
	Name string `mapstructure:"name"`
	// MaxEntries bounds the number of entries held in memory.
	// default: 10000
	MaxEntries int64 `mapstructure:"max_entries"`
	// DefaultTTL applies when Set is called without a TTL.
	// default: 60s
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:       "default",
		MaxEntries: 10_000,
		DefaultTTL: time.Minute,
	}
}

// withDefaults returns a copy of c with zero fields filled from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Name == "" {
		out.Name = d.Name
	}
	if out.MaxEntries == 0 {
		out.MaxEntries = d.MaxEntries
	}
	if out.DefaultTTL == 0 {
		out.DefaultTTL = d.DefaultTTL
	}
	return &out
}

// Validate checks that every field has a usable value.
func (c *Config) Validate() error {
	if c.MaxEntries < 1 {
		return ErrInvalidMaxEntries(c.MaxEntries)
	}
	if c.DefaultTTL <= 0 {
		return ErrInvalidTTL(c.DefaultTTL)
	}
	return nil
}

// Option configures optional collaborators of a Cache.
type Option func(*options)

type options struct {
	log *zap.Logger
	now func() time.Time
}

// WithLogger sets the logger used for revalidation failures and pruning.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock replaces time.Now for age computations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
