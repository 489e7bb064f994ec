package retry

import (
	"context"
	"testing"
	"time"

	"github.com/objstream/objstream/pkg/errors"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	r := New(Config{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrCodeNetworkError, "connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	r := New(Config{MaxAttempts: 4, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.InvalidArgument("bad offset")
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.IsCode(err, errors.ErrCodeInvalidArgument) {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New(errors.ErrCodeConnectionTimeout, "dial timeout")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.IsCode(err, errors.ErrCodeRetryExhausted) {
		t.Errorf("expected RETRY_EXHAUSTED, got %v", err)
	}
	if !errors.IsCode(stderrUnwrap(err), errors.ErrCodeConnectionTimeout) {
		t.Errorf("expected wrapped CONNECTION_TIMEOUT, got %v", err)
	}
}

func stderrUnwrap(err error) error {
	if se, ok := err.(*errors.StreamError); ok {
		return se.Cause
	}
	return err
}

func TestDoHonorsContextCancellation(t *testing.T) {
	r := New(Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New(errors.ErrCodeNetworkError, "flaky")
	})
	if !errors.IsCode(err, errors.ErrCodeOperationCanceled) {
		t.Errorf("expected OPERATION_CANCELED, got %v", err)
	}
	if calls >= 10 {
		t.Errorf("expected early exit, got %d calls", calls)
	}
}

func TestDoCallsOnRetry(t *testing.T) {
	var attempts []int
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = time.Millisecond
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	r := New(cfg)
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return errors.New(errors.ErrCodeNetworkError, "flaky")
	})
	if len(attempts) != 2 {
		t.Errorf("expected 2 retry callbacks, got %v", attempts)
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	r := New(Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	})
	d1 := r.delay(1)
	d2 := r.delay(2)
	d4 := r.delay(4)
	if d1 != 10*time.Millisecond {
		t.Errorf("delay(1) = %v, want 10ms", d1)
	}
	if d2 != 20*time.Millisecond {
		t.Errorf("delay(2) = %v, want 20ms", d2)
	}
	if d4 != 40*time.Millisecond {
		t.Errorf("delay(4) = %v, want capped 40ms", d4)
	}
}

func TestNewFillsDefaults(t *testing.T) {
	r := New(Config{})
	if r.MaxAttempts() != 4 {
		t.Errorf("MaxAttempts = %d, want 4", r.MaxAttempts())
	}
}
