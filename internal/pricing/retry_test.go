package pricing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Growth: 2.0}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Growth: 2.0}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, Growth: 2.0}

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error {
			calls++
			return errors.New("always failing")
		})
	}()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe context cancellation")
	}
	if calls > 2 {
		t.Errorf("expected the backoff sleep to be interrupted, got %d calls", calls)
	}
}

func TestRetrySingleAttemptFloor(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 0, BaseDelay: time.Millisecond, Growth: 2.0}

	calls := 0
	policy.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
}
