package proxy

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"harvest-go/pkg/budget"
	"harvest-go/pkg/logger"
)

const defaultReleaseTimeout = 10 * time.Second

// Manager hands out scoped endpoint leases. Every acquisition picks a
// random region from the configured list to diversify the apparent
// request origin.
type Manager struct {
	provider       Provider
	regions        []string
	releaseTimeout time.Duration
	log            *logger.Logger
}

// NewManager creates a manager over the given provider
func NewManager(provider Provider, regions []string) *Manager {
	return &Manager{
		provider:       provider,
		regions:        regions,
		releaseTimeout: defaultReleaseTimeout,
		log:            logger.GetLogger().Component("proxy"),
	}
}

// Acquire provisions an endpoint bound to the invocation deadline of
// ctx. The returned lease must be released; With is the safer way to
// get that.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	endpoint, err := m.provider.Acquire(ctx, m.pickRegion())
	if err != nil {
		return nil, err
	}

	deadline, hasDeadline := ctx.Deadline()
	return &Lease{
		endpoint:    endpoint,
		manager:     m,
		deadline:    deadline,
		hasDeadline: hasDeadline,
	}, nil
}

// With runs fn with a fresh lease and releases it on every exit path,
// including panic unwinds. A teardown failure after a successful fn is
// reported as the unit's failure.
func (m *Manager) With(ctx context.Context, fn func(*Lease) error) (err error) {
	lease, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lease.Release(); releaseErr != nil {
			m.log.WithError(releaseErr).Error("Failed to release routing endpoint")
			if err == nil {
				err = releaseErr
			}
		}
	}()

	return fn(lease)
}

func (m *Manager) pickRegion() string {
	if len(m.regions) == 0 {
		return ""
	}
	return m.regions[rand.Intn(len(m.regions))]
}

// Lease is one invocation's hold on a routing endpoint
type Lease struct {
	endpoint    *Endpoint
	manager     *Manager
	deadline    time.Time
	hasDeadline bool
	released    atomic.Bool
}

// Endpoint returns the held endpoint
func (l *Lease) Endpoint() *Endpoint {
	return l.endpoint
}

// Remaining answers how much invocation time is left, so callers can
// stop starting work and release before the hard deadline
func (l *Lease) Remaining() time.Duration {
	if !l.hasDeadline {
		return budget.NoDeadline
	}
	remaining := time.Until(l.deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Release tears the endpoint down. It is idempotent and runs under its
// own timeout so teardown still happens when the invocation deadline
// has already passed.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.manager.releaseTimeout)
	defer cancel()
	return l.manager.provider.Release(ctx, l.endpoint)
}
