package blob

import "context"

// Store is write-once object storage keyed by path. Snapshots and
// extraction results are both JSON documents, so implementations write
// everything as application/json.
type Store interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
