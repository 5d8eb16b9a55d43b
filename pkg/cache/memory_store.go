package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

var (
	_ Store   = (*MemoryStore)(nil)
	_ Flusher = (*MemoryStore)(nil)
)

// MemoryStore is an in-process Store backed by go-cache.
type MemoryStore struct {
	items *gocache.Cache
	// listMu serializes read-modify-write of list values.
	listMu sync.Mutex
}

// NewMemoryStore creates an in-memory store that purges expired entries every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, ErrMiss
	}
	return clone(data), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.items.Set(key, clone(value), expiration(ttl))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.items.Get(key)
	return ok, nil
}

func (s *MemoryStore) RangeGet(_ context.Context, key string) ([][]byte, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	list, ok := v.([][]byte)
	if !ok || len(list) == 0 {
		return nil, ErrMiss
	}
	out := make([][]byte, len(list))
	for i, item := range list {
		out[i] = clone(item)
	}
	return out, nil
}

func (s *MemoryStore) RangePushAll(_ context.Context, key string, values [][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	s.listMu.Lock()
	defer s.listMu.Unlock()

	var list [][]byte
	if v, ok := s.items.Get(key); ok {
		if existing, ok := v.([][]byte); ok {
			list = append(list, existing...)
		}
	}
	for _, item := range values {
		list = append(list, clone(item))
	}
	s.items.Set(key, list, expiration(ttl))
	return nil
}

// Flush removes every entry.
func (s *MemoryStore) Flush(context.Context) error {
	s.items.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
