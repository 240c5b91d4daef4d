package store

import (
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for a Store.
type Config struct {
	// Prefix scopes the keys considered for quota eviction.
	// default: "rawr:"
	Prefix string `mapstructure:"prefix"`
	// Debounce is the delay Set waits for further writes to the same key.
	// default: 1s
	Debounce time.Duration `mapstructure:"debounce"`
	// CoalesceWrites shares one debounce timer between all keys, so every
	// pending write goes out in a single batch. A steady stream of writes to
	// any key then postpones all of them.
	CoalesceWrites bool `mapstructure:"coalesce_writes"`
	// EvictFraction is the share of prefixed keys dropped when the backend
	// reports its quota is exhausted.
	// default: 0.25
	EvictFraction float64 `mapstructure:"evict_fraction"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Prefix:        "rawr:",
		Debounce:      time.Second,
		EvictFraction: 0.25,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Prefix == "" {
		out.Prefix = d.Prefix
	}
	if out.Debounce == 0 {
		out.Debounce = d.Debounce
	}
	if out.EvictFraction == 0 {
		out.EvictFraction = d.EvictFraction
	}
	return &out
}

// Validate checks that every field has a usable value.
func (c *Config) Validate() error {
	if c.Debounce < 0 {
		return ErrInvalidDebounce(c.Debounce)
	}
	if c.EvictFraction <= 0 || c.EvictFraction > 1 {
		return ErrInvalidEvictFraction(c.EvictFraction)
	}
	return nil
}

// Option configures optional collaborators of a Store.
type Option func(*Store)

// WithLogger sets the logger for eviction, fallback and decode events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for write timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}
