package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keksclan/goRawrFeed/errkind"
)

var errUpstream = errkind.HTTPError(503, "unavailable")

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Now()
	b.nowFunc = func() time.Time { return now }
	return b, &now
}

func TestClosedToOpen(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: 5 * time.Second})

	if s := b.State(); s != Closed {
		t.Fatalf("expected closed, got %v", s)
	}
	b.Done(errUpstream)
	b.Done(errUpstream)
	if s := b.State(); s != Closed {
		t.Fatalf("expected closed after 2 failures, got %v", s)
	}
	b.Done(errUpstream)
	if s := b.State(); s != Open {
		t.Fatalf("expected open after 3 failures, got %v", s)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, OpenTimeout: time.Second})

	b.Done(errUpstream)
	b.Done(nil)
	b.Done(errUpstream)
	if s := b.State(); s != Closed {
		t.Fatalf("expected closed, got %v", s)
	}
}

func TestClientErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	b.Done(errkind.HTTPError(404, ""))
	b.Done(context.Canceled)
	if s := b.State(); s != Closed {
		t.Fatalf("expected closed, got %v", s)
	}
}

func TestOpenRejectsUntilTimeout(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: 5 * time.Second, HalfOpenProbes: 2})

	b.Done(errUpstream)
	if b.Allow() {
		t.Fatal("expected Allow()=false while open")
	}

	*now = now.Add(5 * time.Second)
	if s := b.State(); s != HalfOpen {
		t.Fatalf("expected half_open, got %v", s)
	}
	if !b.Allow() || !b.Allow() {
		t.Fatal("expected two probes admitted")
	}
	if b.Allow() {
		t.Fatal("third concurrent probe admitted")
	}

	b.Done(nil)
	b.Done(nil)
	if s := b.State(); s != Closed {
		t.Fatalf("expected closed after probes succeed, got %v", s)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	b.Done(errUpstream)
	*now = now.Add(time.Second)
	if !b.Allow() {
		t.Fatal("expected probe admitted")
	}
	b.Done(errUpstream)
	if s := b.State(); s != Open {
		t.Fatalf("expected open, got %v", s)
	}
}

func TestExecute(t *testing.T) {
	var transitions []string
	b, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	calls := 0
	fail := func() (int, error) { calls++; return 0, errUpstream }

	if _, err := Execute(b, fail); !errors.Is(err, errUpstream) {
		t.Fatalf("got %v", err)
	}
	if _, err := Execute(b, fail); !errors.Is(err, ErrOpen) {
		t.Fatalf("got %v, want ErrOpen", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times", calls)
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("transitions = %v", transitions)
	}
}
