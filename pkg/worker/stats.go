package worker

import (
	"sync/atomic"
	"time"
)

// Stats tracks runner performance counters
type Stats struct {
	Handled      atomic.Uint64
	Succeeded    atomic.Uint64
	Failed       atomic.Uint64
	Requeued     atomic.Uint64
	DeadLettered atomic.Uint64

	TotalDuration atomic.Uint64 // in nanoseconds
	MinDuration   atomic.Uint64 // in nanoseconds
	MaxDuration   atomic.Uint64 // in nanoseconds

	StartTime time.Time
}

// NewStats creates a new stats instance
func NewStats() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// Record tracks the outcome and duration of one handled delivery
func (s *Stats) Record(err error, duration time.Duration) {
	s.Handled.Add(1)
	if err != nil {
		s.Failed.Add(1)
	} else {
		s.Succeeded.Add(1)
	}
	s.recordDuration(duration)
}

func (s *Stats) recordDuration(duration time.Duration) {
	nanos := uint64(duration.Nanoseconds())
	s.TotalDuration.Add(nanos)

	for {
		current := s.MinDuration.Load()
		if current != 0 && nanos >= current {
			break
		}
		if s.MinDuration.CompareAndSwap(current, nanos) {
			break
		}
	}

	for {
		current := s.MaxDuration.Load()
		if nanos <= current {
			break
		}
		if s.MaxDuration.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// Snapshot returns a point-in-time copy of the counters
func (s *Stats) Snapshot() StatsSnapshot {
	handled := s.Handled.Load()
	succeeded := s.Succeeded.Load()

	var avgDuration time.Duration
	if handled > 0 {
		avgDuration = time.Duration(s.TotalDuration.Load() / handled)
	}

	var successRate float64
	if handled > 0 {
		successRate = float64(succeeded) / float64(handled)
	}

	var throughput float64
	uptime := time.Since(s.StartTime)
	if uptime > 0 {
		throughput = float64(succeeded) / uptime.Seconds()
	}

	return StatsSnapshot{
		Handled:         handled,
		Succeeded:       succeeded,
		Failed:          s.Failed.Load(),
		Requeued:        s.Requeued.Load(),
		DeadLettered:    s.DeadLettered.Load(),
		SuccessRate:     successRate,
		Throughput:      throughput,
		AverageDuration: avgDuration,
		MinDuration:     time.Duration(s.MinDuration.Load()),
		MaxDuration:     time.Duration(s.MaxDuration.Load()),
		Uptime:          uptime,
	}
}

// StatsSnapshot represents a point-in-time view of runner counters,
// served by the ops status endpoint
type StatsSnapshot struct {
	Handled         uint64        `json:"handled"`
	Succeeded       uint64        `json:"succeeded"`
	Failed          uint64        `json:"failed"`
	Requeued        uint64        `json:"requeued"`
	DeadLettered    uint64        `json:"dead_lettered"`
	SuccessRate     float64       `json:"success_rate"`
	Throughput      float64       `json:"throughput_per_second"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	Uptime          time.Duration `json:"uptime"`
}
