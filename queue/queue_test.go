package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func mustNew(t *testing.T, max int, opts ...Option) *Queue {
	t.Helper()
	q, err := New(&Config{Name: t.Name(), MaxConcurrent: max}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

// recorder collects the order in which tasks start.
type recorder struct {
	mu      sync.Mutex
	started []int
}

func (r *recorder) task(i int) Task {
	return func() error {
		r.mu.Lock()
		r.started = append(r.started, i)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.started...)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEnqueue_AdmitsUpToMaxThenFIFO(t *testing.T) {
	const k, n = 3, 10
	q := mustNew(t, k)
	rec := &recorder{}

	for i := range n {
		admitted := q.Enqueue(rec.task(i))
		if admitted != (i < k) {
			t.Fatalf("task %d admitted=%v", i, admitted)
		}
	}
	if got := rec.snapshot(); !equalInts(got, []int{0, 1, 2}) {
		t.Fatalf("started %v, want first %d", got, k)
	}
	if q.Active() != k || q.Pending() != n-k {
		t.Fatalf("active=%d pending=%d", q.Active(), q.Pending())
	}

	for range k {
		q.Complete()
		if q.Active() > k {
			t.Fatalf("active %d exceeds %d", q.Active(), k)
		}
	}
	if got := rec.snapshot(); !equalInts(got, []int{0, 1, 2, 3, 4, 5}) {
		t.Fatalf("started %v, want next %d in enqueue order", got, k)
	}

	for range n {
		q.Complete()
	}
	if got := rec.snapshot(); len(got) != n {
		t.Fatalf("started %d tasks, want %d", len(got), n)
	}
	if q.Active() != 0 {
		t.Fatalf("active = %d after draining, want 0", q.Active())
	}
}

func TestComplete_FloorsAtZero(t *testing.T) {
	q := mustNew(t, 2)
	q.Complete()
	q.Complete()
	if q.Active() != 0 {
		t.Fatalf("active = %d, want 0", q.Active())
	}
}

func TestClear_DropsPendingWithoutRunning(t *testing.T) {
	q := mustNew(t, 1)
	var ran atomic.Int32
	task := func() error { ran.Add(1); return nil }

	q.Enqueue(task)
	q.Enqueue(task)
	q.Enqueue(task)
	q.Clear()

	if q.Active() != 0 || q.Pending() != 0 {
		t.Fatalf("active=%d pending=%d after Clear", q.Active(), q.Pending())
	}
	q.Complete()
	if ran.Load() != 1 {
		t.Fatalf("ran %d tasks, want 1", ran.Load())
	}
}

func TestFailingTaskDoesNotStallQueue(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	var reported []error
	q := mustNew(t, 1,
		WithLogger(zap.New(core)),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)
	rec := &recorder{}

	q.Enqueue(rec.task(0))
	q.Enqueue(func() error { return errors.New("decode failed") })
	q.Enqueue(func() error { panic("bad image") })
	q.Enqueue(rec.task(3))

	// Completing task 0 admits the two failing tasks, each of which gives
	// its slot back, and finally task 3.
	q.Complete()

	if got := rec.snapshot(); !equalInts(got, []int{0, 3}) {
		t.Fatalf("started %v, want [0 3]", got)
	}
	if q.Active() != 1 || q.Pending() != 0 {
		t.Fatalf("active=%d pending=%d", q.Active(), q.Pending())
	}
	if len(reported) != 2 {
		t.Fatalf("reported %d failures, want 2", len(reported))
	}
	if logs.FilterMessage("queued task failed").Len() != 2 {
		t.Fatalf("expected 2 failure logs, got %d", logs.Len())
	}
}

func TestTaskMayCompleteSynchronously(t *testing.T) {
	q := mustNew(t, 1)
	rec := &recorder{}
	var self Task
	self = func() error {
		rec.task(-1)()
		q.Complete()
		return nil
	}
	q.Enqueue(self)
	q.Enqueue(rec.task(1))
	if got := rec.snapshot(); !equalInts(got, []int{-1, 1}) {
		t.Fatalf("started %v", got)
	}
}

func TestGo_BoundsConcurrency(t *testing.T) {
	const k = 2
	q := mustNew(t, k)
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		q.Go(t.Context(), func(_ context.Context) error {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	wg.Wait()

	if p := peak.Load(); p > k {
		t.Fatalf("peak concurrency %d exceeds %d", p, k)
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(&Config{MaxConcurrent: -1}); err == nil {
		t.Fatal("expected error")
	}
	q, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	if q.MaxConcurrent() != DefaultConfig().MaxConcurrent {
		t.Fatalf("max = %d", q.MaxConcurrent())
	}
}
