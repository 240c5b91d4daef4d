// Package queue provides an admission-controlled FIFO queue for
// concurrency-limited side-effecting work such as media downloads.
//
// A task is admitted immediately while fewer than MaxConcurrent tasks are
// active; otherwise it waits in FIFO order. Callers report that an admitted
// task has finished with [Queue.Complete], which admits the next waiting task.
//
// Each admitted task runs inside a recovery boundary: an error or panic is
// logged and reported, and the task's slot is released so the tasks queued
// behind it keep draining.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/Keksclan/goRawrFeed/metrics"
	"go.uber.org/zap"
)

// Task is a unit of admitted work. It should start its work and return; the
// owner calls Complete when the work is done. A non-nil error means the task
// failed to start, and its slot is released automatically.
type Task func() error

// Queue bounds the number of active tasks. All methods are safe for
// concurrent use. Tasks are never invoked while the queue's lock is held, so
// a task may call Complete synchronously.
type Queue struct {
	name          string
	maxConcurrent int
	log           *zap.Logger
	onError       func(error)

	mu      sync.Mutex
	active  int
	pending []Task
}

// New creates a Queue. A nil cfg uses [DefaultConfig].
func New(cfg *Config, opts ...Option) (*Queue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q := &Queue{
		name:          cfg.Name,
		maxConcurrent: cfg.MaxConcurrent,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With(zap.String("queue", q.name))
	return q, nil
}

// Enqueue admits task immediately, running it on the caller's goroutine,
// when a slot is free. Otherwise task is appended to the waiting list. It
// reports whether task was admitted immediately.
func (q *Queue) Enqueue(task Task) bool {
	q.mu.Lock()
	if q.active < q.maxConcurrent {
		q.active++
		q.reportLocked()
		q.mu.Unlock()
		q.run(task)
		return true
	}
	q.pending = append(q.pending, task)
	q.reportLocked()
	q.mu.Unlock()
	return false
}

// Complete releases one slot and, if a task is waiting, admits the oldest
// one on the caller's goroutine.
func (q *Queue) Complete() {
	q.mu.Lock()
	q.active = max(q.active-1, 0)
	next := q.popLocked()
	q.reportLocked()
	q.mu.Unlock()

	if next != nil {
		q.run(next)
	}
}

// Clear drops every waiting task without running it and resets the active
// count to zero. Completions reported later by tasks that were already
// running are absorbed by the zero floor.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := len(q.pending)
	q.active = 0
	q.pending = nil
	q.reportLocked()
	q.mu.Unlock()

	if dropped > 0 {
		q.log.Debug("queue cleared", zap.Int("dropped", dropped))
	}
}

// Go enqueues fn as a task that runs on its own goroutine and completes
// itself when fn returns. Errors from fn are reported like task failures.
func (q *Queue) Go(ctx context.Context, fn func(context.Context) error) bool {
	return q.Enqueue(func() error {
		go func() {
			defer q.Complete()
			if err := q.safeCall(func() error { return fn(ctx) }); err != nil {
				q.fail(err)
			}
		}()
		return nil
	})
}

// Active returns the number of admitted tasks that have not completed.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Pending returns the number of tasks waiting for admission.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// MaxConcurrent returns the configured concurrency bound.
func (q *Queue) MaxConcurrent() int { return q.maxConcurrent }

// popLocked admits the head of the waiting list if a slot is free.
func (q *Queue) popLocked() Task {
	if len(q.pending) == 0 || q.active >= q.maxConcurrent {
		return nil
	}
	next := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.active++
	return next
}

// run invokes an admitted task. A failing task gives its slot back, which
// may admit the next one.
func (q *Queue) run(task Task) {
	if err := q.safeCall(task); err != nil {
		q.fail(err)
		q.Complete()
	}
}

func (q *Queue) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: task panicked: %v", r)
		}
	}()
	return fn()
}

func (q *Queue) fail(err error) {
	q.log.Error("queued task failed", zap.Error(err))
	metrics.IncQueueFailure(q.name)
	if q.onError != nil {
		q.onError(err)
	}
}

func (q *Queue) reportLocked() {
	metrics.SetQueueDepth(q.name, q.active, len(q.pending))
}
