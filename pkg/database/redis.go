package database

import (
	"context"
	"fmt"

	"nonce-core/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis connects to Redis and pings it once.
// addr: "localhost:6379"
func ConnectRedis(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	logger.Debug("redis connected", zap.String("addr", addr), zap.Int("db", db))
	return rdb, nil
}
