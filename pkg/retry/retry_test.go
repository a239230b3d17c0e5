package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Millisecond,
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	policy := testPolicy(3)

	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return &HTTPError{StatusCode: 429}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestDo_ThrottledUntilCeiling(t *testing.T) {
	policy := testPolicy(4)

	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		return &HTTPError{StatusCode: 429}
	})

	if err == nil {
		t.Fatal("Expected error after exhausting attempts, got nil")
	}
	if attempts != 5 { // max attempts + 1
		t.Errorf("Expected 5 attempts, got %d", attempts)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 429 {
		t.Errorf("Expected the last HTTP 429 to be returned, got %v", err)
	}
}

func TestDo_PermanentStatusStillConsumesAttempts(t *testing.T) {
	policy := testPolicy(2)

	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		return &HTTPError{StatusCode: 500}
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDo_NotFoundStopsImmediately(t *testing.T) {
	policy := testPolicy(3)

	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		return ErrNotFound
	})

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for not-found, got %d", attempts)
	}
}

func TestDo_TerminalStopsImmediately(t *testing.T) {
	policy := testPolicy(3)
	cause := errors.New("unusable payload")

	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		return Terminal(cause)
	})

	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for terminal error, got %d", attempts)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func() error {
		return &HTTPError{StatusCode: 429}
	})

	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Outcome
	}{
		{"nil error", nil, Success},
		{"throttled 429", &HTTPError{StatusCode: 429}, Retryable},
		{"blocked 403", &HTTPError{StatusCode: 403}, Retryable},
		{"missing 404", &HTTPError{StatusCode: 404}, NotFound},
		{"not found sentinel", ErrNotFound, NotFound},
		{"server error 500", &HTTPError{StatusCode: 500}, Permanent},
		{"bad gateway 502", &HTTPError{StatusCode: 502}, Permanent},
		{"transport error", errors.New("connection reset"), Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDelay_RetryAfterOverridesShorterBackoff(t *testing.T) {
	policy := Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2.0}

	err := &HTTPError{StatusCode: 429, RetryAfter: 50 * time.Millisecond}
	if got := policy.delay(0, err); got != 50*time.Millisecond {
		t.Errorf("Expected Retry-After to win, got %v", got)
	}
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, Multiplier: 2.0, MaxDelay: 40 * time.Millisecond}

	first := policy.delay(0, errors.New("x"))
	second := policy.delay(1, errors.New("x"))
	capped := policy.delay(4, errors.New("x"))

	if second <= first {
		t.Errorf("Expected growing delay, got %v then %v", first, second)
	}
	if capped > 40*time.Millisecond {
		t.Errorf("Expected delay capped at 40ms, got %v", capped)
	}
}
