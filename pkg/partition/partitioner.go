package partition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"harvest-go/pkg/budget"
	"harvest-go/pkg/catalog"
	"harvest-go/pkg/logger"
	"harvest-go/pkg/metrics"
	"harvest-go/pkg/proxy"
	"harvest-go/pkg/queue"
	"harvest-go/pkg/retry"
)

// Config holds the partition sweep settings
type Config struct {
	Categories         []string
	ItemsPerPage       int
	FallbackTotalItems int
	PageBatchSize      int
	// Margin is the invocation time reserved per category for proxy
	// teardown; once the budget dips below it, remaining categories
	// are skipped rather than risk a leaked endpoint
	Margin time.Duration
}

// Service queries the catalog size per category and enqueues the page
// batches that discovery workers will fan out over
type Service struct {
	client  catalog.Client
	pages   queue.Publisher
	proxies *proxy.Manager
	policy  retry.Policy
	cfg     Config
	log     *logger.Logger
}

// New creates a partitioner service
func New(client catalog.Client, pages queue.Publisher, proxies *proxy.Manager, policy retry.Policy, cfg Config) *Service {
	return &Service{
		client:  client,
		pages:   pages,
		proxies: proxies,
		policy:  policy,
		cfg:     cfg,
		log:     logger.GetLogger().Component("partitioner"),
	}
}

// Run performs one partition sweep over every configured category. A
// category that keeps failing after its retry allowance is reported and
// skipped; it never aborts the sweep.
func (s *Service) Run(ctx context.Context) error {
	log := s.log.WithField("invocation", uuid.NewString())
	b := budget.FromContext(ctx, s.cfg.Margin)

	for i, category := range s.cfg.Categories {
		if b.Exhausted() {
			log.WithFields(map[string]interface{}{
				"skipped":   len(s.cfg.Categories) - i,
				"remaining": b.Remaining().String(),
			}).Warn("Invocation budget exhausted, skipping remaining categories")
			metrics.Batches.WithLabelValues("partition", "skipped").Add(float64(len(s.cfg.Categories) - i))
			break
		}

		categoryLog := log.WithField("category", category)
		if err := s.partitionCategory(ctx, categoryLog, category); err != nil {
			categoryLog.WithError(err).Error("Category partitioning failed")
			metrics.Batches.WithLabelValues("partition", "failed").Inc()
			continue
		}
		metrics.Batches.WithLabelValues("partition", "ok").Inc()
	}
	return nil
}

func (s *Service) partitionCategory(ctx context.Context, log *logger.Logger, category string) error {
	return s.proxies.With(ctx, func(lease *proxy.Lease) error {
		total, err := s.countItems(ctx, log, category, lease)
		if err != nil {
			return err
		}

		totalPages := TotalPages(total, s.cfg.ItemsPerPage)
		batches := Plan(totalPages, s.cfg.PageBatchSize)

		for _, pages := range batches {
			body, err := queue.EncodePageBatch(queue.PageBatch{
				TransactionType: category,
				PageNumbers:     pages,
			})
			if err != nil {
				return err
			}
			if err := s.pages.Publish(ctx, queue.Message{Body: body}); err != nil {
				return fmt.Errorf("failed to enqueue page batch: %w", err)
			}
		}

		log.WithFields(map[string]interface{}{
			"total_items": total,
			"total_pages": totalPages,
			"batches":     len(batches),
		}).Info("Category partitioned")
		return nil
	})
}

// countItems queries the result count for page 1 under the shared retry
// policy. An unavailable count falls back to the configured safety
// value; under-counting would silently drop listings, so the fallback
// is deliberately oversized.
func (s *Service) countItems(ctx context.Context, log *logger.Logger, category string, lease *proxy.Lease) (int, error) {
	policy := s.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RetryAttempts.WithLabelValues("partition").Inc()
		log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Retrying catalog count query")
	}

	var total int
	err := policy.Do(ctx, func() error {
		n, meta, err := s.client.CountListings(ctx, category, lease.Endpoint())
		metrics.FetchDuration.WithLabelValues("partition").Observe(meta.Latency.Seconds())
		if err != nil {
			return err
		}
		total = n
		return nil
	})

	if errors.Is(err, catalog.ErrCountUnavailable) {
		log.WithField("fallback", s.cfg.FallbackTotalItems).Warn("Catalog count unavailable, using fallback")
		return s.cfg.FallbackTotalItems, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}
