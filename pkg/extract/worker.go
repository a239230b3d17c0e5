package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
)

const defaultMaxBatchAttempts = 3

// Requeuer re-enqueues the failed subset of a batch and moves it to the
// dead-letter queue once the batch attempt ceiling is reached
type Requeuer interface {
	Publish(ctx context.Context, msg queue.Message) error
	PublishDead(ctx context.Context, msg queue.Message) error
}

// Config holds the extractor worker settings
type Config struct {
	// MaxBatchAttempts caps how many full passes a batch lineage gets
	// before its remaining ids are dead-lettered
	MaxBatchAttempts int
	// Margin is the invocation time reserved for the result write,
	// republishing and proxy teardown
	Margin time.Duration
}

// Worker fetches listing details for an id batch and stores the usable
// ones as one result object. Ids that stay unreadable are re-enqueued
// as a smaller batch so the readable ones are never fetched twice.
type Worker struct {
	client  catalog.Client
	ids     Requeuer
	results blob.Store
	proxies *proxy.Manager
	policy  retry.Policy
	cfg     Config
	log     *logger.Logger
}

// New creates an extractor worker
func New(client catalog.Client, ids Requeuer, results blob.Store, proxies *proxy.Manager, policy retry.Policy, cfg Config) *Worker {
	if cfg.MaxBatchAttempts <= 0 {
		cfg.MaxBatchAttempts = defaultMaxBatchAttempts
	}
	return &Worker{
		client:  client,
		ids:     ids,
		results: results,
		proxies: proxies,
		policy:  policy,
		cfg:     cfg,
		log:     logger.GetLogger().Component("extractor"),
	}
}

// Handle processes one id batch. attempts counts the full passes the
// batch lineage has already been through; the original enqueue is 0.
//
// A returned error means the whole delivery should come back; nil means
// the delivery is done even when some ids failed, because those ids now
// live in a republished batch of their own.
func (w *Worker) Handle(ctx context.Context, batch queue.IdBatch, attempts int) error {
	invocation := uuid.NewString()
	log := w.log.WithFields(map[string]interface{}{
		"invocation": invocation,
		"category":   batch.TransactionType,
		"listings":   len(batch.ListingIDs),
		"attempts":   attempts,
	})
	b := budget.FromContext(ctx, w.cfg.Margin)

	extracted := make(map[string]json.RawMessage, len(batch.ListingIDs))
	var failed []int64
	notFound := 0

	err := w.proxies.With(ctx, func(lease *proxy.Lease) error {
		for i, id := range batch.ListingIDs {
			if b.Exhausted() {
				// Not failures, just unreached: carry them to the
				// republished batch instead of dropping them
				failed = append(failed, batch.ListingIDs[i:]...)
				log.WithField("unreached", len(batch.ListingIDs)-i).Warn("Invocation budget exhausted mid-batch")
				break
			}

			raw, err := w.fetchListing(ctx, log, id, lease)
			switch {
			case err == nil:
				extracted[strconv.FormatInt(id, 10)] = raw
				metrics.ListingsExtracted.WithLabelValues(batch.TransactionType, "ok").Inc()
			case errors.Is(err, retry.ErrNotFound):
				// Delisted between discovery and now; gone is gone
				notFound++
				metrics.ListingsExtracted.WithLabelValues(batch.TransactionType, "not_found").Inc()
				log.WithField("listing", id).Info("Listing no longer available")
			default:
				failed = append(failed, id)
				metrics.ListingsExtracted.WithLabelValues(batch.TransactionType, "failed").Inc()
				log.WithError(err).WithField("listing", id).Warn("Listing extraction failed")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(extracted) > 0 {
		if err := w.storeResults(ctx, invocation, batch, extracted, attempts); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		if err := w.republish(ctx, log, batch.TransactionType, failed, attempts); err != nil {
			return err
		}
	}

	log.WithFields(map[string]interface{}{
		"extracted": len(extracted),
		"not_found": notFound,
		"failed":    len(failed),
	}).Info("Id batch complete")
	return nil
}

func (w *Worker) fetchListing(ctx context.Context, log *logger.Logger, id int64, lease *proxy.Lease) (json.RawMessage, error) {
	policy := w.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RetryAttempts.WithLabelValues("extract").Inc()
		log.WithError(err).WithFields(map[string]interface{}{
			"listing": id,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Retrying listing fetch")
	}

	var raw json.RawMessage
	err := policy.Do(ctx, func() error {
		r, meta, err := w.client.FetchListing(ctx, id, lease.Endpoint())
		metrics.FetchDuration.WithLabelValues("extract").Observe(meta.Latency.Seconds())
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	return raw, err
}

// storeResults writes the id-to-detail mapping as one object
func (w *Worker) storeResults(ctx context.Context, invocation string, batch queue.IdBatch, extracted map[string]json.RawMessage, attempts int) error {
	payload, err := json.Marshal(extracted)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	key := blob.ResultKey(batch.TransactionType, time.Now())
	meta := map[string]string{
		"invocation": invocation,
		"category":   batch.TransactionType,
		"listings":   strconv.Itoa(len(extracted)),
		"attempts":   strconv.Itoa(attempts),
	}
	if err := w.results.Put(ctx, key, payload, meta); err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	return nil
}

// republish hands the failed subset to a fresh batch so the original
// delivery can be acknowledged. Past the attempt ceiling the subset is
// parked on the dead-letter queue for an operator instead.
func (w *Worker) republish(ctx context.Context, log *logger.Logger, category string, failed []int64, attempts int) error {
	body, err := queue.EncodeIdBatch(queue.IdBatch{
		TransactionType: category,
		ListingIDs:      failed,
	})
	if err != nil {
		return err
	}

	next := attempts + 1
	msg := queue.Message{Body: body, Attempts: next}

	if next >= w.cfg.MaxBatchAttempts {
		if err := w.ids.PublishDead(ctx, msg); err != nil {
			return fmt.Errorf("failed to dead-letter id batch: %w", err)
		}
		metrics.Batches.WithLabelValues("extract", "dead_letter").Inc()
		log.WithFields(map[string]interface{}{
			"failed":   len(failed),
			"attempts": next,
		}).Error("Batch attempt ceiling reached, ids parked on dead-letter queue")
		return nil
	}

	if err := w.ids.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to republish id batch: %w", err)
	}
	metrics.Batches.WithLabelValues("extract", "republished").Inc()
	log.WithFields(map[string]interface{}{
		"failed":   len(failed),
		"attempts": next,
	}).Warn("Failed ids republished as a fresh batch")
	return nil
}
