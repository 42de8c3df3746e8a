package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 按配置连接 Redis 并做一次 Ping
func NewRedisClient(ctx context.Context, cfg RedisStoreConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func redisPrefix(prefix string) string {
	if prefix == "" {
		return "agentteam:"
	}
	return prefix
}

// watchRetry 执行 WATCH 事务，冲突时按 RetryConfig 退避重试
func watchRetry(ctx context.Context, client redis.UniversalClient, retry RetryConfig, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		err = client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.CalculateBackoff(attempt)):
		}
	}
	return fmt.Errorf("optimistic lock retries exhausted: %w", err)
}
