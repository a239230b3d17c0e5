package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"harvest-go/pkg/proxy"
)

// ErrCountUnavailable reports a well-formed search response whose total
// item count is absent or malformed. Partitioning substitutes the
// configured fallback instead of failing.
var ErrCountUnavailable = errors.New("total item count unavailable")

// FetchMeta describes one upstream exchange for logging and metrics
type FetchMeta struct {
	StatusCode int
	Latency    time.Duration
}

// Client is the site-facing port. All calls route through the given
// endpoint when it is proxied and go out directly otherwise.
type Client interface {
	// CountListings reads the total result count for a category from
	// its first search page
	CountListings(ctx context.Context, category string, endpoint *proxy.Endpoint) (int, FetchMeta, error)

	// SearchListings fetches one search-results page
	SearchListings(ctx context.Context, category string, page int, endpoint *proxy.Endpoint) (SearchPage, FetchMeta, error)

	// FetchListing fetches the structured detail of one listing
	FetchListing(ctx context.Context, id int64, endpoint *proxy.Endpoint) (json.RawMessage, FetchMeta, error)
}
