package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"harvest-go/pkg/proxy"
	"harvest-go/pkg/retry"
)

// MockClient serves a deterministic synthetic catalog. The same
// configuration always produces the same listings, which keeps test
// assertions and the demo stable.
type MockClient struct {
	// Total is the number of listings the synthetic catalog holds
	Total int
	// PageSize is how many listings one search page carries
	PageSize int
	// CountHidden makes CountListings report an unavailable count
	CountHidden bool
	// NotFound lists ids whose detail fetch returns not-found
	NotFound map[int64]bool
	// FailStatus forces an HTTP status per id on detail fetches
	FailStatus map[int64]int

	mu      sync.Mutex
	fetched []int64
}

// NewMockClient creates a synthetic catalog of total listings
func NewMockClient(total, pageSize int) *MockClient {
	return &MockClient{
		Total:    total,
		PageSize: pageSize,
	}
}

func (m *MockClient) CountListings(ctx context.Context, category string, endpoint *proxy.Endpoint) (int, FetchMeta, error) {
	if m.CountHidden {
		return 0, FetchMeta{StatusCode: 200}, retry.Terminal(fmt.Errorf("category %s: %w", category, ErrCountUnavailable))
	}
	return m.Total, FetchMeta{StatusCode: 200}, nil
}

func (m *MockClient) SearchListings(ctx context.Context, category string, page int, endpoint *proxy.Endpoint) (SearchPage, FetchMeta, error) {
	start := (page-1)*m.PageSize + 1
	end := page * m.PageSize
	if end > m.Total {
		end = m.Total
	}

	result := SearchPage{TotalItems: m.Total}
	for n := start; n <= end; n++ {
		id := int64(n)
		raw, _ := json.Marshal(map[string]interface{}{
			"id":    id,
			"price": syntheticPrice(category, id),
		})
		result.Results = append(result.Results, raw)
		result.IDs = append(result.IDs, id)
	}
	return result, FetchMeta{StatusCode: 200}, nil
}

func (m *MockClient) FetchListing(ctx context.Context, id int64, endpoint *proxy.Endpoint) (json.RawMessage, FetchMeta, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, id)
	m.mu.Unlock()

	if m.NotFound[id] {
		return nil, FetchMeta{StatusCode: 404}, fmt.Errorf("listing %d: %w", id, retry.ErrNotFound)
	}
	if status := m.FailStatus[id]; status != 0 {
		return nil, FetchMeta{StatusCode: status}, &retry.HTTPError{StatusCode: status}
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"id":    id,
		"price": syntheticPrice("detail", id),
	})
	return detail, FetchMeta{StatusCode: 200}, nil
}

// Fetched returns every detail id requested so far, in order
func (m *MockClient) Fetched() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.fetched))
	copy(out, m.fetched)
	return out
}

func syntheticPrice(category string, id int64) int {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d", category, id)
	return 100_000 + int(h.Sum64()%900_000)
}
