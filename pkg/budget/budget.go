package budget

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrExhausted signals that the invocation deadline is too close to
// safely start another unit of work
var ErrExhausted = errors.New("invocation budget exhausted")

// NoDeadline is reported by Remaining when the context carries no deadline
const NoDeadline = time.Duration(math.MaxInt64)

// Budget tracks how much of an invocation's wall-clock allowance is
// still usable. The margin is reserved for teardown (releasing the
// routing endpoint, acking the message) and is never handed out.
type Budget struct {
	deadline    time.Time
	margin      time.Duration
	hasDeadline bool
}

// FromContext derives a budget from the context deadline
func FromContext(ctx context.Context, margin time.Duration) *Budget {
	deadline, ok := ctx.Deadline()
	return &Budget{
		deadline:    deadline,
		margin:      margin,
		hasDeadline: ok,
	}
}

// Remaining returns the usable time before the reserved margin begins
func (b *Budget) Remaining() time.Duration {
	if !b.hasDeadline {
		return NoDeadline
	}
	remaining := time.Until(b.deadline) - b.margin
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Enough reports whether a unit of work expected to take need can still
// be started
func (b *Budget) Enough(need time.Duration) bool {
	return b.Remaining() >= need
}

// Exhausted reports whether no usable time is left
func (b *Budget) Exhausted() bool {
	return b.hasDeadline && b.Remaining() <= 0
}

// Check returns ErrExhausted when need does not fit in the remaining
// budget. Callers consult it before each unit of sub-work; in-flight
// requests are never interrupted.
func (b *Budget) Check(need time.Duration) error {
	if !b.Enough(need) {
		return ErrExhausted
	}
	return nil
}
