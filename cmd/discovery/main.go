package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"harvest-go/internal/config"
	"harvest-go/internal/handler"
	"harvest-go/internal/service"
	"harvest-go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (optional, HARVEST_* env vars apply either way)")
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

	runner := service.NewDiscoveryRunner(cfg, backends)
	if err := runner.Start(); err != nil {
		mainLog.WithError(err).Fatal("Failed to start discovery runner")
	}

	ops := handler.NewOpsServer(backends, map[string]service.StageRunner{
		"discovery": runner,
	})
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)
		if err := ops.Listen(addr); err != nil {
			mainLog.WithError(err).Error("Ops server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	mainLog.Info("Shutdown signal received")

	runner.Stop()
	ops.Shutdown()
}
