package watermark

import "context"

// Store is the durable per-category high-water mark. It is the only
// mutable state shared across worker instances, so both operations must
// be atomic with respect to concurrent callers.
type Store interface {
	// Get returns the current watermark; absent categories report 0
	Get(ctx context.Context, category string) (int64, error)

	// Raise lifts the watermark to value when value is higher than the
	// stored one. Lower or equal values are a silent no-op, which makes
	// overlapping discovery batches commutative.
	Raise(ctx context.Context, category string, value int64) error
}
