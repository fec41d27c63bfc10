package storage

import (
	"context"
	"testing"
	"time"

	"nonce-core/pkg/errno"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	m, client := newMiniredis(t)
	s := NewRedisStore(client, "durable_nonce")

	_, err := s.Lookup(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, errno.ErrStoreIO)

	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Set(ctx, "b", "2"))
	require.NoError(t, s.Set(ctx, "a", "3"))
	assert.Equal(t, "3", m.HGet("durable_nonce", "a"))
	assert.Equal(t, "2", m.HGet("durable_nonce", "b"))

	value, err := s.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "3", value)

	require.NoError(t, s.Remove(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "never-set"))
	_, err = s.Lookup(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	value, ok := Get(ctx, s, "b")
	require.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestRedisStoreSharedHash(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniredis(t)

	first := NewRedisStore(client, "durable_nonce")
	second := NewRedisStore(client, "durable_nonce")
	other := NewRedisStore(client, "elsewhere")

	require.NoError(t, first.Set(ctx, "a", "1"))
	require.NoError(t, second.Set(ctx, "b", "2"))

	value, err := first.Lookup(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", value, "writers do not clobber each other")

	_, err = other.Lookup(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreServerError(t *testing.T) {
	ctx := context.Background()
	m, client := newMiniredis(t)
	s := NewRedisStore(client, "durable_nonce")
	require.NoError(t, client.Ping(ctx).Err())
	m.SetError("ERR server misbehaving")

	_, err := s.Lookup(ctx, "a")
	assert.ErrorIs(t, err, errno.ErrStoreIO)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Set(ctx, "a", "1"), errno.ErrStoreIO)
}

// Nothing listens on port 1, so every command fails at dial time.
func TestRedisStoreUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client, "durable_nonce")

	_, err := s.Lookup(ctx, "a")
	assert.ErrorIs(t, err, errno.ErrStoreIO)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Set(ctx, "a", "1"), errno.ErrStoreIO)
	assert.ErrorIs(t, s.Remove(ctx, "a"), errno.ErrStoreIO)

	_, ok := Get(ctx, s, "a")
	assert.False(t, ok)
}
