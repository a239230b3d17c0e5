package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"harvest-go/internal/service"
	"harvest-go/pkg/logger"
	"harvest-go/pkg/worker"
)

// OpsServer serves liveness, readiness, stage status and Prometheus
// metrics. Every deployment runs one regardless of which stages it
// hosts.
type OpsServer struct {
	app    *fiber.App
	ready  service.Pinger
	stages map[string]service.StageRunner
	log    *logger.Logger
}

// StatusResponse is the /status payload
type StatusResponse struct {
	Status    string                          `json:"status"`
	Timestamp string                          `json:"timestamp"`
	Stages    map[string]worker.StatsSnapshot `json:"stages"`
}

// NewOpsServer creates the operational server. ready may be nil when
// the process has no backing stores to probe; stages may be empty for
// the partitioner, which runs to completion instead of consuming.
func NewOpsServer(ready service.Pinger, stages map[string]service.StageRunner) *OpsServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	s := &OpsServer{
		app:    app,
		ready:  ready,
		stages: stages,
		log:    logger.GetLogger().Component("ops"),
	}

	app.Get("/healthz", s.handleHealth)
	app.Get("/readyz", s.handleReady)
	app.Get("/status", s.handleStatus)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return s
}

func (s *OpsServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *OpsServer) handleReady(c *fiber.Ctx) error {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("Readiness probe failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unready",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *OpsServer) handleStatus(c *fiber.Ctx) error {
	stages := make(map[string]worker.StatsSnapshot, len(s.stages))
	for name, runner := range s.stages {
		stages[name] = runner.Stats()
	}
	return c.JSON(StatusResponse{
		Status:    "running",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Stages:    stages,
	})
}

// Listen blocks serving on addr until Shutdown is called
func (s *OpsServer) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("Ops server listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server, letting in-flight requests finish
func (s *OpsServer) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}
