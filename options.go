package gorawrfeed

import (
	"github.com/Keksclan/goRawrFeed/policy"
	"github.com/Keksclan/goRawrFeed/store"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Core.
type Option func(*options)

type options struct {
	cfg             *Config
	log             *zap.Logger
	backend         store.Backend
	tracerProvider  trace.TracerProvider
	policies        *policy.Resolver
	registerMetrics bool
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.cfg = cfg
		}
	}
}

// WithLogger uses l instead of building one from Config.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithBackend uses b as the durable store backend instead of opening the one
// named in Config.Backend. The Core takes ownership of b.
func WithBackend(b store.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithTracerProvider sets the provider of fetch spans. Without it the global
// provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithPolicies sets the key policies consulted by every Resource. Without it
// DefaultPolicies is used.
func WithPolicies(r *policy.Resolver) Option {
	return func(o *options) {
		o.policies = r
	}
}

// WithoutMetrics skips registering collectors with the default Prometheus
// registry.
func WithoutMetrics() Option {
	return func(o *options) {
		o.registerMetrics = false
	}
}
