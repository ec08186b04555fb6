package state

import "context"

// Store is a small binary kv abstraction. Values are opaque blobs; callers
// pick the encoding (msgpack for snapshots, raw bytes elsewhere).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
