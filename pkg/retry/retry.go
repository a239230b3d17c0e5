package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Outcome classifies the result of a single request attempt
type Outcome int

const (
	Success Outcome = iota
	// Retryable covers upstream throttling (403/429) and transport errors
	Retryable
	// Permanent covers any other non-2xx status; it still consumes
	// attempts up to the ceiling before the failure is escalated
	Permanent
	// NotFound is a terminal, non-erroneous outcome
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ErrNotFound marks an item that disappeared from the catalog. Callers
// match it with errors.Is and treat it as a skip, not a failure.
var ErrNotFound = errors.New("not found")

// HTTPError carries the status of a non-2xx response and, for throttled
// responses, the server's Retry-After hint
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps an error so Do stops immediately instead of consuming
// further attempts. Used for failures that retrying cannot fix, such as
// a well-formed response with an unusable body.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// Classify maps an attempt error to its outcome
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, ErrNotFound) {
		return NotFound
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 404:
			return NotFound
		case 403, 429:
			return Retryable
		default:
			return Permanent
		}
	}

	// Network errors and timeouts
	return Retryable
}

// Policy is the shared backoff state machine. One unit of work (a page
// fetch or a detail fetch) is attempted at most MaxAttempts+1 times.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      float64

	// OnRetry, when set, observes every scheduled re-attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the backoff parameters used by all stages
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
	}
}

// Do runs fn until it succeeds, returns a terminal outcome, or the
// attempt ceiling is reached. Backoff waits respect ctx cancellation.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		var term *terminalError
		if errors.As(err, &term) {
			return term.err
		}
		if Classify(err) == NotFound {
			return err
		}

		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// delay computes the wait before re-attempt number attempt+1. A server
// Retry-After hint overrides a shorter computed delay.
func (p Policy) delay(attempt int, err error) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
		delay = httpErr.RetryAfter
	}
	return delay
}
