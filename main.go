package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"harvest-go/internal/config"
	"harvest-go/internal/handler"
	"harvest-go/internal/service"
	"harvest-go/pkg/logger"
)

// The all-in-one binary hosts every pipeline stage in one process:
// partition sweeps run on a timer while both stage runners drain their
// queues. The cmd/ binaries deploy the same pieces separately.
func main() {
	var (
		configPath    = flag.String("config", "", "Configuration file path (optional, HARVEST_* env vars apply either way)")
		sweepInterval = flag.Duration("sweep-interval", 6*time.Hour, "Partition sweep cadence; 0 disables sweeping")
		sweepTimeout  = flag.Duration("sweep-timeout", 10*time.Minute, "Deadline for one sweep")
		sweepOnStart  = flag.Bool("sweep-on-start", true, "Run a sweep immediately instead of waiting one interval")
	)
	flag.Parse()

	godotenv.Load()

	cfg, err := config.NewManager().Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetGlobalLogger(logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	}))
	mainLog := logger.GetLogger().Component("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := service.NewBackends(ctx, cfg)
	if err != nil {
		mainLog.WithError(err).Fatal("Failed to connect backends")
	}
	defer backends.Close()

	discoveryRunner := service.NewDiscoveryRunner(cfg, backends)
	if err := discoveryRunner.Start(); err != nil {
		mainLog.WithError(err).Fatal("Failed to start discovery runner")
	}
	extractRunner := service.NewExtractorRunner(cfg, backends)
	if err := extractRunner.Start(); err != nil {
		mainLog.WithError(err).Fatal("Failed to start extractor runner")
	}

	ops := handler.NewOpsServer(backends, map[string]service.StageRunner{
		"discovery": discoveryRunner,
		"extract":   extractRunner,
	})
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)
		if err := ops.Listen(addr); err != nil {
			mainLog.WithError(err).Error("Ops server failed")
		}
	}()

	if *sweepInterval > 0 {
		partitioner := service.NewPartitioner(cfg, backends)
		go func() {
			if *sweepOnStart {
				runSweep(ctx, partitioner, *sweepTimeout, mainLog)
			}
			ticker := time.NewTicker(*sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runSweep(ctx, partitioner, *sweepTimeout, mainLog)
				}
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	mainLog.Info("Shutdown signal received")
	cancel()

	discoveryRunner.Stop()
	extractRunner.Stop()
	ops.Shutdown()
}

func runSweep(ctx context.Context, partitioner service.PartitionService, timeout time.Duration, log *logger.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := partitioner.Run(sweepCtx); err != nil {
		log.WithError(err).Error("Partition sweep failed")
	}
}
