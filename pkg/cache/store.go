package cache

import (
	"context"
	stderrors "errors"
	"time"
)

// ErrMiss is returned by a Store when a key is absent or expired.
var ErrMiss = stderrors.New("cache: miss")

// Store is the key-value backend behind an Accessor. Implementations must be safe
// for concurrent use; single operations are assumed atomic.
// A ttl <= 0 stores the value without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// RangeGet returns every element of the list at key, ErrMiss when absent or empty.
	RangeGet(ctx context.Context, key string) ([][]byte, error)
	// RangePushAll appends values to the list at key and (re)sets its expiry.
	RangePushAll(ctx context.Context, key string, values [][]byte, ttl time.Duration) error
}

// Flusher is implemented by stores that can drop every entry they own.
type Flusher interface {
	Flush(ctx context.Context) error
}
