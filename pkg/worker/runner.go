package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"harvest-go/pkg/logger"
	"harvest-go/pkg/metrics"
	"harvest-go/pkg/queue"
)

// Handler processes one queue delivery. A nil return acknowledges the
// delivery; an error sends it back for redelivery, or to the
// dead-letter queue when the broker already redelivered it once.
type Handler func(ctx context.Context, d queue.Delivery) error

// RunnerConfig holds configuration for a stage runner
type RunnerConfig struct {
	// Name labels the stage in logs and metrics
	Name string
	// Workers is the number of concurrent deliveries in flight
	Workers int
	// HandleTimeout bounds one delivery; handlers read it through the
	// context deadline and budget their remaining work against it
	HandleTimeout time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight work
	ShutdownTimeout time.Duration
}

// DefaultRunnerConfig returns the default runner configuration for a
// stage
func DefaultRunnerConfig(name string) RunnerConfig {
	return RunnerConfig{
		Name:            name,
		Workers:         runtime.NumCPU(),
		HandleTimeout:   5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Runner drains a queue through a fixed set of worker goroutines and
// applies the acknowledgement policy around the stage handler.
type Runner struct {
	source  queue.Consumer
	handler Handler
	cfg     RunnerConfig
	log     *logger.Logger
	stats   *Stats

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	stopped atomic.Bool
}

// NewRunner creates a runner draining source through handler
func NewRunner(source queue.Consumer, handler Handler, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		source:  source,
		handler: handler,
		cfg:     cfg,
		log:     logger.GetLogger().Component(cfg.Name + "_runner"),
		stats:   NewStats(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins consuming and returns immediately
func (r *Runner) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("runner already started")
	}

	deliveries, err := r.source.Consume(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	r.log.WithField("workers", r.cfg.Workers).Info("Starting stage runner")
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.work(id, deliveries)
		}(i)
	}
	return nil
}

// Stop cancels in-flight handlers and waits for the workers to drain,
// up to the shutdown timeout. Interrupted deliveries go back to the
// queue unacknowledged.
func (r *Runner) Stop() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	r.log.Info("Stopping stage runner")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("Stage runner stopped")
	case <-time.After(r.cfg.ShutdownTimeout):
		r.log.Warn("Stage runner shutdown timeout exceeded")
	}
	return nil
}

// Stats returns a snapshot of the runner counters
func (r *Runner) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

func (r *Runner) work(id int, deliveries <-chan queue.Delivery) {
	log := r.log.WithField("worker", id)
	for d := range deliveries {
		r.handleOne(log, d)
	}
}

func (r *Runner) handleOne(log *logger.Logger, d queue.Delivery) {
	start := time.Now()
	err := r.invoke(d)
	r.stats.Record(err, time.Since(start))

	switch {
	case err == nil:
		if ackErr := d.Ack(); ackErr != nil {
			log.WithError(ackErr).Warn("Failed to acknowledge delivery")
		}
		metrics.Batches.WithLabelValues(r.cfg.Name, "ok").Inc()

	case d.Redelivered():
		// Second strike: park it for an operator instead of looping
		log.WithError(err).Error("Redelivered batch failed again, parking on dead-letter queue")
		if nackErr := d.Dead(); nackErr != nil {
			log.WithError(nackErr).Warn("Failed to dead-letter delivery")
		}
		r.stats.DeadLettered.Add(1)
		metrics.Batches.WithLabelValues(r.cfg.Name, "dead_letter").Inc()

	default:
		log.WithError(err).Warn("Batch failed, sending back for redelivery")
		if nackErr := d.Requeue(); nackErr != nil {
			log.WithError(nackErr).Warn("Failed to requeue delivery")
		}
		r.stats.Requeued.Add(1)
		metrics.Batches.WithLabelValues(r.cfg.Name, "requeued").Inc()
	}
}

// invoke runs the handler under the per-delivery deadline and converts
// a panic into an ordinary failed delivery
func (r *Runner) invoke(d queue.Delivery) (err error) {
	ctx := r.ctx
	if r.cfg.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.HandleTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return r.handler(ctx, d)
}
