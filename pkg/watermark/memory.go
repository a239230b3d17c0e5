package watermark

import (
	"context"
	"sync"
)

// MemoryStore provides an in-memory watermark store for tests and the
// single-process demo
type MemoryStore struct {
	marks map[string]int64
	mu    sync.RWMutex
}

// NewMemoryStore creates a new memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		marks: make(map[string]int64),
	}
}

func (ms *MemoryStore) Get(ctx context.Context, category string) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.marks[category], nil
}

func (ms *MemoryStore) Raise(ctx context.Context, category string, value int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if value > ms.marks[category] {
		ms.marks[category] = value
	}
	return nil
}

// Set force-writes a watermark, bypassing the monotonic raise. Test
// setup only.
func (ms *MemoryStore) Set(category string, value int64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.marks[category] = value
}
