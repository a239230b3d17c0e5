package service

import (
	"context"

	"harvest-go/pkg/worker"
)

// PartitionService seeds the page queue from per-category catalog
// counts
type PartitionService interface {
	Run(ctx context.Context) error
}

// StageRunner drains one queue through a stage handler
type StageRunner interface {
	Start() error
	Stop() error
	Stats() worker.StatsSnapshot
}

// Pinger reports whether a backing dependency answers
type Pinger interface {
	Ping(ctx context.Context) error
}
