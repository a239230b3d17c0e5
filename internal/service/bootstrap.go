package service

import (
	"context"
	"fmt"

	"harvest-go/internal/config"
	"harvest-go/pkg/blob"
	"harvest-go/pkg/catalog"
	"harvest-go/pkg/discovery"
	"harvest-go/pkg/extract"
	"harvest-go/pkg/logger"
	"harvest-go/pkg/partition"
	"harvest-go/pkg/proxy"
	"harvest-go/pkg/queue"
	"harvest-go/pkg/retry"
	"harvest-go/pkg/watermark"
	"harvest-go/pkg/worker"
)

// Backends bundles every external dependency the pipeline stages share
type Backends struct {
	Client  catalog.Client
	Proxies *proxy.Manager
	Pages   queue.Queue
	Ids     queue.Queue
	Blobs   blob.Store
	Marks   watermark.Store

	broker *queue.Broker
	pg     *watermark.PostgresStore
	log    *logger.Logger
}

// NewBackends connects to the broker, the object store and the
// watermark database. On any failure everything opened so far is
// closed again.
func NewBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	log := logger.GetLogger().Component("bootstrap")

	broker, err := queue.Dial(cfg.Queue.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	pages, err := broker.Declare(cfg.Queue.PageQueue, cfg.Queue.Prefetch)
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to declare page queue: %w", err)
	}

	ids, err := broker.Declare(cfg.Queue.IdQueue, cfg.Queue.Prefetch)
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to declare id queue: %w", err)
	}

	blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		UseSSL:    cfg.Blob.UseSSL,
		Bucket:    cfg.Blob.Bucket,
	})
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	pg, err := watermark.NewPostgresStore(ctx, watermark.PostgresConfig{
		DSN:      cfg.Watermark.DSN,
		MaxConns: cfg.Watermark.MaxConns,
	})
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to open watermark store: %w", err)
	}

	client := catalog.NewHTTPClient(catalog.Config{
		BaseURL:           cfg.Catalog.BaseURL,
		RequestTimeout:    cfg.Catalog.RequestTimeout,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
		Burst:             cfg.Catalog.Burst,
	})

	return &Backends{
		Client:  client,
		Proxies: newProxyManager(cfg),
		Pages:   pages,
		Ids:     ids,
		Blobs:   blobs,
		Marks:   pg,
		broker:  broker,
		pg:      pg,
		log:     log,
	}, nil
}

// Close releases the broker and database connections
func (b *Backends) Close() {
	if err := b.broker.Close(); err != nil {
		b.log.WithError(err).Warn("Broker close failed")
	}
	b.pg.Close()
}

// Ping verifies the watermark database answers; the readiness probe
// hangs off this
func (b *Backends) Ping(ctx context.Context) error {
	return b.pg.Ping(ctx)
}

func newProxyManager(cfg *config.Config) *proxy.Manager {
	var provider proxy.Provider
	switch cfg.Proxy.Mode {
	case "gateway":
		provider = proxy.NewGatewayProvider(proxy.GatewayConfig{
			BaseURL:   cfg.Proxy.GatewayURL,
			AccessKey: cfg.Proxy.AccessKey,
			SecretKey: cfg.Proxy.AccessSecret,
		})
	case "static":
		provider = proxy.NewStaticProvider(cfg.Proxy.URLs)
	default:
		// Direct mode is a static provider with nothing to rotate
		provider = proxy.NewStaticProvider(nil)
	}
	return proxy.NewManager(provider, cfg.Proxy.Regions)
}

func retryPolicy(cfg *config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Pipeline.MaxRetryAttempts
	if cfg.Pipeline.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.Pipeline.RetryBaseDelay
	}
	return policy
}

func runnerConfig(cfg *config.Config, name string) worker.RunnerConfig {
	rc := worker.DefaultRunnerConfig(name)
	if cfg.Worker.Workers > 0 {
		rc.Workers = cfg.Worker.Workers
	}
	if cfg.Worker.HandleTimeout > 0 {
		rc.HandleTimeout = cfg.Worker.HandleTimeout
	}
	if cfg.Worker.ShutdownTimeout > 0 {
		rc.ShutdownTimeout = cfg.Worker.ShutdownTimeout
	}
	return rc
}

// NewPartitioner assembles the partition sweep service
func NewPartitioner(cfg *config.Config, b *Backends) PartitionService {
	return partition.New(b.Client, b.Pages, b.Proxies, retryPolicy(cfg), partition.Config{
		Categories:         cfg.Pipeline.Categories,
		ItemsPerPage:       cfg.Pipeline.ItemsPerPage,
		FallbackTotalItems: cfg.Pipeline.FallbackTotalItems,
		PageBatchSize:      cfg.Pipeline.PageBatchSize,
		Margin:             cfg.Pipeline.PartitionMargin,
	})
}

// NewDiscoveryRunner assembles the discovery stage over the page queue
func NewDiscoveryRunner(cfg *config.Config, b *Backends) *worker.Runner {
	w := discovery.New(b.Client, b.Ids, b.Blobs, b.Marks, b.Proxies, retryPolicy(cfg), discovery.Config{
		IdBatchSize: cfg.Pipeline.IdBatchSize,
		Margin:      cfg.Pipeline.WorkerMargin,
	})
	return worker.NewRunner(b.Pages, DiscoveryHandler(w), runnerConfig(cfg, "discovery"))
}

// NewExtractorRunner assembles the extraction stage over the id queue
func NewExtractorRunner(cfg *config.Config, b *Backends) *worker.Runner {
	w := extract.New(b.Client, b.Ids, b.Blobs, b.Proxies, retryPolicy(cfg), extract.Config{
		MaxBatchAttempts: cfg.Pipeline.MaxBatchAttempts,
		Margin:           cfg.Pipeline.WorkerMargin,
	})
	return worker.NewRunner(b.Ids, ExtractHandler(w), runnerConfig(cfg, "extract"))
}

// DiscoveryHandler adapts a discovery worker to the runner contract
func DiscoveryHandler(w *discovery.Worker) worker.Handler {
	return func(ctx context.Context, d queue.Delivery) error {
		batch, err := queue.DecodePageBatch(d.Body())
		if err != nil {
			return fmt.Errorf("malformed page batch: %w", err)
		}
		return w.Handle(ctx, batch)
	}
}

// ExtractHandler adapts an extractor worker to the runner contract
func ExtractHandler(w *extract.Worker) worker.Handler {
	return func(ctx context.Context, d queue.Delivery) error {
		batch, err := queue.DecodeIdBatch(d.Body())
		if err != nil {
			return fmt.Errorf("malformed id batch: %w", err)
		}
		return w.Handle(ctx, batch, d.Attempts())
	}
}
