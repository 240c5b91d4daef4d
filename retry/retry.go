package retry

import (
	"context"
	"time"

	"github.com/Keksclan/goRawrFeed/errkind"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so fn is
	// called at most MaxRetries+1 times. Negative values mean no retries.
	MaxRetries int `mapstructure:"max_retries"`

	// InitialDelay is the delay before the first retry. Each further retry
	// doubles it.
	InitialDelay time.Duration `mapstructure:"initial_delay"`

	// MaxDelay caps the computed delay. Zero disables the cap.
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64 `mapstructure:"jitter"`

	// ShouldRetry decides whether err is transient. When nil,
	// errkind.Retryable is used.
	ShouldRetry func(err error) bool `mapstructure:"-"`

	// OnRetry, when set, is called before every backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error) `mapstructure:"-"`
}

// DefaultConfig returns the write-path defaults: 3 retries starting at one
// second, capped at ten seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		ShouldRetry:  errkind.Retryable,
	}
}

// ReadConfig returns [DefaultConfig] with the read-path predicate, which
// additionally retries rate-limited responses.
func ReadConfig() Config {
	cfg := DefaultConfig()
	cfg.ShouldRetry = errkind.RetryableRead
	return cfg
}

// Do calls fn until it succeeds, the error is not retryable, or MaxRetries
// retries have been spent. Between attempts it sleeps according to the
// backoff schedule.
//
// The context is observed during every sleep; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	retries := max(cfg.MaxRetries, 0)
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = errkind.Retryable
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		// Out of retries or a permanent failure: surface it as-is.
		if attempt == retries || !shouldRetry(err) {
			return zero, err
		}

		delay := backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
