// Package retry re-executes a fallible operation with capped exponential
// backoff. Whether an error is worth another attempt is decided by a
// predicate, by default the errkind classifier's write-path rule.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff returns the delay before retry number attempt (0-indexed):
// InitialDelay * 2^attempt, capped at MaxDelay, with optional jitter.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 {
		delay = min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter > 0 {
		// ±Jitter fraction of the delay
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(delay, 0))
}
