package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	_ Store   = (*RedisStore)(nil)
	_ Flusher = (*RedisStore)(nil)
)

const flushBatch = 500

// RedisStore is a Store backed by Redis strings and lists.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. Every key is prefixed with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get retrieves the value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to get %q from redis: %w", key, err)
	}
	return data, nil
}

// Set stores value at key.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, normalizeTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("failed to set %q in redis: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %q from redis: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %q in redis: %w", key, err)
	}
	return n > 0, nil
}

// RangeGet returns the whole list stored at key.
func (s *RedisStore) RangeGet(ctx context.Context, key string) ([][]byte, error) {
	items, err := s.client.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read list %q from redis: %w", key, err)
	}
	if len(items) == 0 {
		return nil, ErrMiss
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

// RangePushAll appends values to the list at key in a single transaction.
func (s *RedisStore) RangePushAll(ctx context.Context, key string, values [][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}

	k := s.key(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, args...)
		if ttl > 0 {
			pipe.Expire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push list %q to redis: %w", key, err)
	}
	return nil
}

// Flush deletes every key under the store prefix, or the whole database when the
// prefix is empty.
func (s *RedisStore) Flush(ctx context.Context) error {
	if s.prefix == "" {
		if err := s.client.FlushDB(ctx).Err(); err != nil {
			return fmt.Errorf("failed to flush redis: %w", err)
		}
		return nil
	}

	iter := s.client.Scan(ctx, 0, s.prefix+"*", flushBatch).Iterator()
	batch := make([]string, 0, flushBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatch {
			if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to flush redis keys: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis keys: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to flush redis keys: %w", err)
		}
	}
	return nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
