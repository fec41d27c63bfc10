package storage

import (
	"context"
	"errors"
	"fmt"

	"nonce-core/pkg/errno"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries as fields of one Redis hash. Unlike FileStore,
// concurrent writers from several processes do not clobber each other.
type RedisStore struct {
	client redis.Cmdable
	hash   string
}

func NewRedisStore(client redis.Cmdable, hash string) *RedisStore {
	return &RedisStore{client: client, hash: hash}
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (string, error) {
	value, err := s.client.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: redis hget %s: %w", errno.ErrStoreIO, s.hash, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.hash, key, value).Err(); err != nil {
		return fmt.Errorf("%w: redis hset %s: %w", errno.ErrStoreIO, s.hash, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		return fmt.Errorf("%w: redis hdel %s: %w", errno.ErrStoreIO, s.hash, err)
	}
	return nil
}
