package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"harvest-go/pkg/blob"
	"harvest-go/pkg/budget"
	"harvest-go/pkg/catalog"
	"harvest-go/pkg/logger"
	"harvest-go/pkg/metrics"
	"harvest-go/pkg/proxy"
	"harvest-go/pkg/queue"
	"harvest-go/pkg/retry"
	"harvest-go/pkg/watermark"
)

const defaultIdBatchSize = 100

// Config holds the discovery worker settings
type Config struct {
	IdBatchSize int
	// Margin is the invocation time reserved for the snapshot write,
	// the watermark round-trip and proxy teardown; once the budget
	// dips below it the batch fails and is redelivered whole
	Margin time.Duration
}

// Worker turns a page batch into id batches. It fetches every page of
// the batch through one leased endpoint, persists the raw results,
// then forwards only the listing ids above the category watermark.
type Worker struct {
	client    catalog.Client
	ids       queue.Publisher
	snapshots blob.Store
	marks     watermark.Store
	proxies   *proxy.Manager
	policy    retry.Policy
	cfg       Config
	log       *logger.Logger
}

// New creates a discovery worker
func New(client catalog.Client, ids queue.Publisher, snapshots blob.Store, marks watermark.Store, proxies *proxy.Manager, policy retry.Policy, cfg Config) *Worker {
	if cfg.IdBatchSize <= 0 {
		cfg.IdBatchSize = defaultIdBatchSize
	}
	return &Worker{
		client:    client,
		ids:       ids,
		snapshots: snapshots,
		marks:     marks,
		proxies:   proxies,
		policy:    policy,
		cfg:       cfg,
		log:       logger.GetLogger().Component("discovery"),
	}
}

// Handle processes one page batch. Any page that stays unreadable past
// the retry allowance fails the whole batch so the queue redelivers
// it; pages already fetched are refetched on redelivery, which is
// harmless because the watermark makes forwarding idempotent.
func (w *Worker) Handle(ctx context.Context, batch queue.PageBatch) error {
	invocation := uuid.NewString()
	log := w.log.WithFields(map[string]interface{}{
		"invocation": invocation,
		"category":   batch.TransactionType,
		"pages":      len(batch.PageNumbers),
	})
	b := budget.FromContext(ctx, w.cfg.Margin)

	var results []json.RawMessage
	var ids []int64
	err := w.proxies.With(ctx, func(lease *proxy.Lease) error {
		for i, page := range batch.PageNumbers {
			if b.Exhausted() {
				return fmt.Errorf("invocation budget exhausted after %d/%d pages", i, len(batch.PageNumbers))
			}
			result, err := w.fetchPage(ctx, log, batch.TransactionType, page, lease)
			if err != nil {
				metrics.PagesFetched.WithLabelValues(batch.TransactionType, "failed").Inc()
				return fmt.Errorf("page %d: %w", page, err)
			}
			metrics.PagesFetched.WithLabelValues(batch.TransactionType, "ok").Inc()
			results = append(results, result.Results...)
			ids = append(ids, result.IDs...)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The snapshot keeps everything the site returned, seen before or
	// not; it is the recovery source when extraction misbehaves
	if err := w.storeSnapshot(ctx, invocation, batch, results, ids); err != nil {
		return err
	}

	mark, err := w.marks.Get(ctx, batch.TransactionType)
	if err != nil {
		return fmt.Errorf("failed to read watermark: %w", err)
	}

	fresh := freshIDs(ids, mark)
	if len(fresh) == 0 {
		log.WithFields(map[string]interface{}{
			"listings":  len(ids),
			"watermark": mark,
		}).Info("No listings above watermark, nothing to forward")
		return nil
	}

	// Publish before raising the watermark: a crash in between costs
	// duplicate extractions, the other order would lose listings
	for _, chunk := range chunkIDs(fresh, w.cfg.IdBatchSize) {
		body, err := queue.EncodeIdBatch(queue.IdBatch{
			TransactionType: batch.TransactionType,
			ListingIDs:      chunk,
		})
		if err != nil {
			return err
		}
		if err := w.ids.Publish(ctx, queue.Message{Body: body}); err != nil {
			return fmt.Errorf("failed to enqueue id batch: %w", err)
		}
	}

	top := fresh[len(fresh)-1]
	if err := w.marks.Raise(ctx, batch.TransactionType, top); err != nil {
		return fmt.Errorf("failed to raise watermark: %w", err)
	}
	metrics.Watermark.WithLabelValues(batch.TransactionType).Set(float64(top))

	log.WithFields(map[string]interface{}{
		"listings":  len(ids),
		"new":       len(fresh),
		"watermark": top,
	}).Info("Discovery batch complete")
	return nil
}

func (w *Worker) fetchPage(ctx context.Context, log *logger.Logger, category string, page int, lease *proxy.Lease) (catalog.SearchPage, error) {
	policy := w.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RetryAttempts.WithLabelValues("discovery").Inc()
		log.WithError(err).WithFields(map[string]interface{}{
			"page":    page,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Retrying search page")
	}

	var result catalog.SearchPage
	err := policy.Do(ctx, func() error {
		p, meta, err := w.client.SearchListings(ctx, category, page, lease.Endpoint())
		metrics.FetchDuration.WithLabelValues("discovery").Observe(meta.Latency.Seconds())
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	return result, err
}

func (w *Worker) storeSnapshot(ctx context.Context, invocation string, batch queue.PageBatch, results []json.RawMessage, ids []int64) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := blob.SnapshotKey(batch.TransactionType, time.Now())
	meta := map[string]string{
		"invocation": invocation,
		"category":   batch.TransactionType,
		"pages":      strconv.Itoa(len(batch.PageNumbers)),
		"listings":   strconv.Itoa(len(ids)),
	}
	if err := w.snapshots.Put(ctx, key, payload, meta); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	metrics.SnapshotBytes.WithLabelValues(batch.TransactionType).Add(float64(len(payload)))
	return nil
}

// freshIDs drops everything at or below the watermark, dedupes the
// survivors and returns them ascending so chunk boundaries are stable
// across redeliveries.
func freshIDs(ids []int64, mark int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	fresh := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= mark {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })
	return fresh
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = defaultIdBatchSize
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
