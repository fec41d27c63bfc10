package lock

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"nonce-core/pkg/safe_random"

	"github.com/redis/go-redis/v9"
)

// DistributedLock serializes work on one key across processes.
type DistributedLock interface {
	// Acquire tries once to take the lock; false means someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a lock taken by this instance.
	Release(ctx context.Context, key string) error
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX PX lock with a random owner token.
type RedisLock struct {
	client redis.Cmdable

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLock(client redis.Cmdable) *RedisLock {
	return &RedisLock{client: client, tokens: make(map[string]string)}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	raw, err := safe_random.GenerateRandomBytes(16)
	if err != nil {
		return false, err
	}
	token := hex.EncodeToString(raw)

	ok, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, token).Err()
}
