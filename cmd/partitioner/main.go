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

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path (optional, HARVEST_* env vars apply either way)")
		interval   = flag.Duration("interval", 0, "Rerun the sweep every interval; 0 runs once and exits")
		timeout    = flag.Duration("timeout", 10*time.Minute, "Deadline for one sweep")
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

	ops := handler.NewOpsServer(backends, nil)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)
		if err := ops.Listen(addr); err != nil {
			mainLog.WithError(err).Error("Ops server failed")
		}
	}()
	defer ops.Shutdown()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		mainLog.Info("Shutdown signal received")
		cancel()
	}()

	partitioner := service.NewPartitioner(cfg, backends)

	for {
		runCtx, runCancel := context.WithTimeout(ctx, *timeout)
		err := partitioner.Run(runCtx)
		runCancel()
		if err != nil {
			mainLog.WithError(err).Error("Partition sweep failed")
		}

		if *interval <= 0 {
			mainLog.Info("Sweep finished")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}
