package proxy

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// StaticProvider rotates over a fixed list of proxy URLs. With an empty
// list every endpoint is direct, which serves environments where no
// rotation infrastructure is available and the in-memory test setups.
type StaticProvider struct {
	urls []string
	next atomic.Uint64
}

// NewStaticProvider creates a provider over the given proxy URLs
func NewStaticProvider(urls []string) *StaticProvider {
	return &StaticProvider{urls: urls}
}

func (p *StaticProvider) Acquire(ctx context.Context, region string) (*Endpoint, error) {
	endpoint := &Endpoint{
		ID:     uuid.NewString(),
		Region: region,
	}
	if len(p.urls) > 0 {
		n := p.next.Add(1) - 1
		endpoint.ProxyURL = p.urls[n%uint64(len(p.urls))]
	}
	return endpoint, nil
}

func (p *StaticProvider) Release(ctx context.Context, endpoint *Endpoint) error {
	return nil
}
