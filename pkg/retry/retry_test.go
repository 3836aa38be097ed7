package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoWithResultSucceedsOnFirstTry(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		return 42, nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoWithResultRetriesUntilSuccess(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}, Config{MaxRetries: 5, InitialDelay: time.Millisecond, Multiplier: 2.0})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 7 {
		t.Fatalf("result = %d, want 7", result)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoWithResultStopsAtMaxRetries(t *testing.T) {
	calls := 0
	sentinel := errors.New("always fails")
	_, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		return 0, sentinel
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (MaxRetries)", calls)
	}
}

func TestDoWithResultHonorsRetryIf(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	neverRetry := func(error) bool { return false }
	_, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		return 0, permanent
	}, Config{MaxRetries: 5, InitialDelay: time.Millisecond, RetryIf: neverRetry})

	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (RetryIf rejected the error, so no retry should happen)", calls)
	}
}

func TestRetryIfNotContextRejectsContextErrors(t *testing.T) {
	if RetryIfNotContext(context.Canceled) {
		t.Fatal("expected context.Canceled to be non-retryable")
	}
	if RetryIfNotContext(context.DeadlineExceeded) {
		t.Fatal("expected context.DeadlineExceeded to be non-retryable")
	}
	if !RetryIfNotContext(errors.New("network blip")) {
		t.Fatal("expected a plain error to be retryable")
	}
}

func TestDoWithResultStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := DoWithResult(ctx, func() (int, error) {
		calls++
		return 0, errors.New("should not retry past cancellation")
	}, Config{MaxRetries: 5, InitialDelay: time.Millisecond})

	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}
