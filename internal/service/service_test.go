package service

import (
	"context"
	"testing"
	"time"

	"harvest-go/pkg/blob"
	"harvest-go/pkg/catalog"
	"harvest-go/pkg/discovery"
	"harvest-go/pkg/extract"
	"harvest-go/pkg/proxy"
	"harvest-go/pkg/queue"
	"harvest-go/pkg/retry"
	"harvest-go/pkg/watermark"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func directProxies() *proxy.Manager {
	return proxy.NewManager(proxy.NewStaticProvider(nil), nil)
}

func deliver(t *testing.T, mq *queue.MemoryQueue, msg queue.Message) queue.Delivery {
	t.Helper()
	if err := mq.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	deliveries, err := mq.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	select {
	case d := <-deliveries:
		return d
	case <-time.After(time.Second):
		t.Fatal("No delivery arrived")
		return nil
	}
}

func TestDiscoveryHandler_RejectsMalformedBody(t *testing.T) {
	w := discovery.New(catalog.NewMockClient(5, 30), queue.NewMemoryQueue(8), blob.NewMemoryStore(), watermark.NewMemoryStore(), directProxies(), testPolicy(), discovery.Config{})
	handler := DiscoveryHandler(w)

	pages := queue.NewMemoryQueue(8)
	d := deliver(t, pages, queue.Message{Body: []byte("not json")})

	if err := handler(context.Background(), d); err == nil {
		t.Error("Expected an error for a malformed page batch")
	}
}

func TestDiscoveryHandler_RunsWorker(t *testing.T) {
	ids := queue.NewMemoryQueue(8)
	w := discovery.New(catalog.NewMockClient(5, 30), ids, blob.NewMemoryStore(), watermark.NewMemoryStore(), directProxies(), testPolicy(), discovery.Config{})
	handler := DiscoveryHandler(w)

	body, err := queue.EncodePageBatch(queue.PageBatch{TransactionType: "maison/a-vendre", PageNumbers: []int{1}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	pages := queue.NewMemoryQueue(8)
	d := deliver(t, pages, queue.Message{Body: body})

	if err := handler(context.Background(), d); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if got := len(ids.Published()); got != 1 {
		t.Errorf("Expected 1 forwarded id batch, got %d", got)
	}
}

func TestExtractHandler_CarriesDeliveryAttempts(t *testing.T) {
	ids := queue.NewMemoryQueue(8)
	client := catalog.NewMockClient(100, 30)
	client.FailStatus = map[int64]int{7: 500}

	w := extract.New(client, ids, blob.NewMemoryStore(), directProxies(), testPolicy(), extract.Config{MaxBatchAttempts: 3})
	handler := ExtractHandler(w)

	body, err := queue.EncodeIdBatch(queue.IdBatch{TransactionType: "maison/a-vendre", ListingIDs: []int64{7}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Attempts 2 on the delivery means this pass is the lineage's last
	d := deliver(t, ids, queue.Message{Body: body, Attempts: 2})
	if err := handler(context.Background(), d); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	dead := ids.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("Expected the batch dead-lettered at the attempt ceiling, got %d", len(dead))
	}
	if dead[0].Attempts != 3 {
		t.Errorf("Expected attempt count 3, got %d", dead[0].Attempts)
	}
}
