package queue

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds configuration for a Queue.
type Config struct {
	// Name labels logs and metrics.
	// default: "images"
	Name string `mapstructure:"name"`
	// MaxConcurrent is the number of tasks that may be active at once.
	// default: 6
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:          "images",
		MaxConcurrent: 6,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Name == "" {
		out.Name = d.Name
	}
	if out.MaxConcurrent == 0 {
		out.MaxConcurrent = d.MaxConcurrent
	}
	return &out
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("queue: invalid max concurrent: %d (must be >= 1)", c.MaxConcurrent)
	}
	return nil
}

// Option configures optional collaborators of a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for task failures.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithErrorHandler registers a callback invoked for every failed task.
func WithErrorHandler(fn func(error)) Option {
	return func(q *Queue) { q.onError = fn }
}
