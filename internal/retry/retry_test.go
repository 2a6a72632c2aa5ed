package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	p := Fixed(3, time.Millisecond, nil)

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	p := Fixed(3, time.Millisecond, nil)

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 1 call plus 3 retries, got %d", calls)
	}
}

func TestDoSkipsNonRetryable(t *testing.T) {
	calls := 0
	p := Fixed(3, time.Millisecond, func(error) bool { return false })

	_ = p.Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestBeforeAttemptRunsBetweenTries(t *testing.T) {
	var seen []int
	p := Exponential(3, time.Millisecond)
	p.BeforeAttempt = func(attempt int) { seen = append(seen, attempt) }

	_ = p.Do(context.Background(), func(context.Context) error { return errBoom })
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected hook calls: %v", seen)
	}
}

func TestDelayFor(t *testing.T) {
	p := Exponential(4, time.Second)
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if got := p.DelayFor(attempt); got != w {
			t.Errorf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}

	fixed := Fixed(3, time.Second, nil)
	if got := fixed.DelayFor(3); got != time.Second {
		t.Errorf("fixed delay: expected 1s, got %v", got)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Fixed(5, time.Hour, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}
