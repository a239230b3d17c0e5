package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"harvest-go/pkg/catalog"
	"harvest-go/pkg/proxy"
	"harvest-go/pkg/queue"
	"harvest-go/pkg/retry"
)

type stubClient struct {
	mu          sync.Mutex
	counts      map[string]int
	unavailable map[string]bool
	failStatus  map[string]int
	calls       map[string]int
}

func newStubClient() *stubClient {
	return &stubClient{
		counts:      make(map[string]int),
		unavailable: make(map[string]bool),
		failStatus:  make(map[string]int),
		calls:       make(map[string]int),
	}
}

func (s *stubClient) CountListings(ctx context.Context, category string, endpoint *proxy.Endpoint) (int, catalog.FetchMeta, error) {
	s.mu.Lock()
	s.calls[category]++
	s.mu.Unlock()

	if status := s.failStatus[category]; status != 0 {
		return 0, catalog.FetchMeta{StatusCode: status}, &retry.HTTPError{StatusCode: status}
	}
	if s.unavailable[category] {
		return 0, catalog.FetchMeta{StatusCode: 200}, retry.Terminal(fmt.Errorf("category %s: %w", category, catalog.ErrCountUnavailable))
	}
	return s.counts[category], catalog.FetchMeta{StatusCode: 200}, nil
}

func (s *stubClient) SearchListings(ctx context.Context, category string, page int, endpoint *proxy.Endpoint) (catalog.SearchPage, catalog.FetchMeta, error) {
	return catalog.SearchPage{}, catalog.FetchMeta{}, fmt.Errorf("not used by the partitioner")
}

func (s *stubClient) FetchListing(ctx context.Context, id int64, endpoint *proxy.Endpoint) (json.RawMessage, catalog.FetchMeta, error) {
	return nil, catalog.FetchMeta{}, fmt.Errorf("not used by the partitioner")
}

func (s *stubClient) callCount(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[category]
}

type countingProvider struct {
	mu       sync.Mutex
	acquires int
	releases int
}

func (p *countingProvider) Acquire(ctx context.Context, region string) (*proxy.Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquires++
	return &proxy.Endpoint{ID: fmt.Sprintf("ep-%d", p.acquires)}, nil
}

func (p *countingProvider) Release(ctx context.Context, endpoint *proxy.Endpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return nil
}

func testConfig(categories ...string) Config {
	return Config{
		Categories:         categories,
		ItemsPerPage:       30,
		FallbackTotalItems: 9969,
		PageBatchSize:      120,
		Margin:             30 * time.Second,
	}
}

func testRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func decodeAll(t *testing.T, messages []queue.Message) []queue.PageBatch {
	t.Helper()
	batches := make([]queue.PageBatch, 0, len(messages))
	for _, msg := range messages {
		batch, err := queue.DecodePageBatch(msg.Body)
		if err != nil {
			t.Fatalf("Published message does not decode: %v", err)
		}
		batches = append(batches, batch)
	}
	return batches
}

func TestRun_SmallCategoryFitsOneBatch(t *testing.T) {
	client := newStubClient()
	client.counts["maison/a-vendre"] = 250

	pages := queue.NewMemoryQueue(16)
	manager := proxy.NewManager(proxy.NewStaticProvider(nil), nil)
	svc := New(client, pages, manager, testRetryPolicy(), testConfig("maison/a-vendre"))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	batches := decodeAll(t, pages.Published())
	if len(batches) != 1 {
		t.Fatalf("Expected 1 page batch for 9 pages, got %d", len(batches))
	}
	if batches[0].TransactionType != "maison/a-vendre" {
		t.Errorf("Unexpected category: %s", batches[0].TransactionType)
	}
	if len(batches[0].PageNumbers) != 9 || batches[0].PageNumbers[0] != 1 || batches[0].PageNumbers[8] != 9 {
		t.Errorf("Expected pages 1..9, got %v", batches[0].PageNumbers)
	}
}

func TestRun_LargeCategorySplitsExactly(t *testing.T) {
	client := newStubClient()
	client.counts["appartement/a-louer"] = 9000 // 300 pages

	pages := queue.NewMemoryQueue(16)
	manager := proxy.NewManager(proxy.NewStaticProvider(nil), nil)
	svc := New(client, pages, manager, testRetryPolicy(), testConfig("appartement/a-louer"))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	batches := decodeAll(t, pages.Published())
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches for 300 pages, got %d", len(batches))
	}

	next := 1
	for _, batch := range batches {
		for _, page := range batch.PageNumbers {
			if page != next {
				t.Fatalf("Expected page %d next, got %d", next, page)
			}
			next++
		}
	}
	if next != 301 {
		t.Errorf("Coverage ended at %d, expected 300", next-1)
	}
}

func TestRun_CountUnavailableUsesFallback(t *testing.T) {
	client := newStubClient()
	client.unavailable["maison/a-louer"] = true

	pages := queue.NewMemoryQueue(16)
	manager := proxy.NewManager(proxy.NewStaticProvider(nil), nil)
	svc := New(client, pages, manager, testRetryPolicy(), testConfig("maison/a-louer"))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 9969 items over 30 per page is 333 pages, so 3 batches
	batches := decodeAll(t, pages.Published())
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches from the fallback count, got %d", len(batches))
	}
	total := 0
	for _, batch := range batches {
		total += len(batch.PageNumbers)
	}
	if total != 333 {
		t.Errorf("Expected 333 pages covered, got %d", total)
	}

	// An unusable count is terminal; retrying cannot fix it
	if client.callCount("maison/a-louer") != 1 {
		t.Errorf("Expected 1 count query, got %d", client.callCount("maison/a-louer"))
	}
}

func TestRun_FailingCategorySkippedOthersProceed(t *testing.T) {
	client := newStubClient()
	client.failStatus["maison/a-vendre"] = 500
	client.counts["maison/a-louer"] = 60

	pages := queue.NewMemoryQueue(16)
	manager := proxy.NewManager(proxy.NewStaticProvider(nil), nil)
	svc := New(client, pages, manager, testRetryPolicy(), testConfig("maison/a-vendre", "maison/a-louer"))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run must not fail the whole sweep: %v", err)
	}

	batches := decodeAll(t, pages.Published())
	if len(batches) != 1 || batches[0].TransactionType != "maison/a-louer" {
		t.Fatalf("Expected only the healthy category enqueued, got %+v", batches)
	}

	// Failing count query consumed the whole attempt ceiling
	if got := client.callCount("maison/a-vendre"); got != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", got)
	}
}

func TestRun_ExhaustedBudgetSkipsAllWork(t *testing.T) {
	client := newStubClient()
	client.counts["maison/a-vendre"] = 250

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	pages := queue.NewMemoryQueue(16)
	provider := &countingProvider{}
	manager := proxy.NewManager(provider, nil)
	// 30s margin against a 50ms deadline, nothing fits
	svc := New(client, pages, manager, testRetryPolicy(), testConfig("maison/a-vendre"))

	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(pages.Published()) != 0 {
		t.Error("Expected no batches with an exhausted budget")
	}
	if provider.acquires != 0 {
		t.Errorf("Expected no endpoint acquisition, got %d", provider.acquires)
	}
}

func TestRun_EndpointReleasedPerCategory(t *testing.T) {
	client := newStubClient()
	client.counts["maison/a-vendre"] = 30
	client.failStatus["appartement/a-vendre"] = 500

	pages := queue.NewMemoryQueue(16)
	provider := &countingProvider{}
	manager := proxy.NewManager(provider, nil)
	svc := New(client, pages, manager, testRetryPolicy(), testConfig("maison/a-vendre", "appartement/a-vendre"))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if provider.acquires != 2 || provider.releases != 2 {
		t.Errorf("Expected 2 acquires and 2 releases, got %d and %d", provider.acquires, provider.releases)
	}
}
