package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore provides a simple in-memory object store for tests and
// the single-process demo
type MemoryStore struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
	mu       sync.RWMutex
}

// NewMemoryStore creates a new memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (ms *MemoryStore) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	ms.objects[key] = stored
	ms.metadata[key] = metadata
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	data, exists := ms.objects[key]
	if !exists {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return data, nil
}

func (ms *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	_, exists := ms.objects[key]
	return exists, nil
}

// Keys returns every stored object key, unordered
func (ms *MemoryStore) Keys() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	keys := make([]string, 0, len(ms.objects))
	for key := range ms.objects {
		keys = append(keys, key)
	}
	return keys
}
