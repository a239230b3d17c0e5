package proxy

import "context"

// Endpoint is an ephemeral routing resource. It belongs to exactly one
// invocation and must not outlive it. Callers treat it as opaque; the
// catalog client only needs ProxyURL to route a request through it.
type Endpoint struct {
	ID       string
	ProxyURL string
	Region   string
}

// Direct reports whether requests should go out unproxied
func (e *Endpoint) Direct() bool {
	return e == nil || e.ProxyURL == ""
}

// Provider creates and destroys routing endpoints
type Provider interface {
	// Acquire provisions a fresh endpoint, optionally in the hinted
	// region. An empty region leaves the choice to the provider.
	Acquire(ctx context.Context, region string) (*Endpoint, error)

	// Release tears the endpoint down
	Release(ctx context.Context, endpoint *Endpoint) error
}
