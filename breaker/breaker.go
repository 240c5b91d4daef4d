// Package breaker guards an upstream with a circuit breaker so a failing
// server is not hammered by every feed fetch.
//
// States:
//   - Closed: fetches flow; consecutive upstream failures are counted.
//   - Open: fetches fail fast with ErrOpen until OpenTimeout has passed.
//   - HalfOpen: up to HalfOpenProbes fetches run at once; that many
//     consecutive successes close the breaker, any failure reopens it.
//
// Only failures that say something about upstream health trip the breaker.
// A 404 or a cancelled request does not.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/Keksclan/goRawrFeed/errkind"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "closed"
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// OpenTimeout is how long the breaker stays Open before letting probes
	// through.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`

	// HalfOpenProbes is both the number of concurrent probes allowed in
	// HalfOpen and the consecutive successes needed to close again.
	HalfOpenProbes int `mapstructure:"half_open_probes"`

	// IsFailure decides whether an error counts against the upstream.
	// Defaults to errkind.Retryable.
	IsFailure func(error) bool `mapstructure:"-"`

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State) `mapstructure:"-"`
}

// DefaultConfig returns a breaker that trips after 5 failures and probes
// again after 30s.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   1,
		IsFailure:        errkind.Retryable,
	}
}

// Breaker is a circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	probes    int // in-flight calls admitted in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time // for testing; defaults to time.Now
}

// New creates a Breaker. Non-positive thresholds fall back to DefaultConfig.
func New(cfg Config) *Breaker {
	d := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = d.OpenTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = d.HalfOpenProbes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = d.IsFailure
	}
	return &Breaker{
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// Execute runs fn if the breaker admits it and records the outcome. It
// returns ErrOpen without calling fn while the breaker is open.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if !b.Allow() {
		var zero T
		return zero, ErrOpen
	}
	v, err := fn()
	b.Done(err)
	return v, err
}

// State returns the current state of the breaker. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	b.checkOpenTimeout()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return to
}

// Allow reports whether a call may proceed. A true result must be paired
// with exactly one Done.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	b.checkOpenTimeout()
	to := b.state

	ok := false
	switch b.state {
	case Closed:
		ok = true
	case HalfOpen:
		if b.probes < b.cfg.HalfOpenProbes {
			b.probes++
			ok = true
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
	return ok
}

// Done records the outcome of a call admitted by Allow. Errors that are not
// upstream failures count as successes.
func (b *Breaker) Done(err error) {
	if err != nil && b.cfg.IsFailure(err) {
		b.onFailure()
		return
	}
	b.onSuccess()
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.probes = max(0, b.probes-1)
		b.successes++
		if b.successes >= b.cfg.HalfOpenProbes {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.probes = 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// checkOpenTimeout transitions from Open to HalfOpen when the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
		b.probes = 0
	}
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
	b.probes = 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

func (b *Breaker) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}
