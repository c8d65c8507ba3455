package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutor_SucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(newFakeClock())
	calls := 0
	err := e.Run(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestExecutor_RetriesRetryableThenSucceeds(t *testing.T) {
	clock := newFakeClock()
	e := NewExecutor(clock)
	calls := 0
	err := e.Run(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ErrUnreachable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecutor_ExhaustsRetriesOnPersistentFailure(t *testing.T) {
	clock := newFakeClock()
	e := NewExecutor(clock)
	calls := 0
	err := e.Run(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return ErrTimeout
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
}

func TestExecutor_TerminalErrorStopsImmediately(t *testing.T) {
	e := NewExecutor(newFakeClock())
	calls := 0
	err := e.Run(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound surfaced directly", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on terminal error)", calls)
	}
}

func TestExecutor_BreakerOpenIsNotRetried(t *testing.T) {
	e := NewExecutor(newFakeClock())
	calls := 0
	err := e.Run(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return ErrBreakerOpen
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestExecutor_UsesBackoffScheduleBetweenAttempts(t *testing.T) {
	clock := newFakeClock()
	e := NewExecutor(clock)
	start := clock.Now()
	calls := 0
	_ = e.Run(context.Background(), Policy{
		MaxRetries:        2,
		PerAttemptTimeout: time.Second,
		BackoffSchedule:   []time.Duration{2 * time.Second, 4 * time.Second},
	}, func(ctx context.Context) error {
		calls++
		return ErrTimeout
	})
	elapsed := clock.Now().Sub(start)
	if elapsed != 6*time.Second {
		t.Fatalf("elapsed (via fake clock sleeps) = %v, want 6s (2s + 4s)", elapsed)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecutor_CancelledContextAbortsSleep(t *testing.T) {
	e := NewExecutor(SystemClock{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := e.Run(ctx, Policy{
		MaxRetries:        2,
		PerAttemptTimeout: time.Second,
		BackoffSchedule:   []time.Duration{10 * time.Millisecond},
	}, func(ctx context.Context) error {
		calls++
		return ErrTimeout
	})
	if err == nil {
		t.Fatal("expected error when context is cancelled before backoff sleep")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (cancelled before retry)", calls)
	}
}
