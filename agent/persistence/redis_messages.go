package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// RedisMessages GptsMessageMemory 的 Redis 实现，每个会话一个以 rounds 为分值的 Sorted Set
type RedisMessages struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ memory.GptsMessageMemory = (*RedisMessages)(nil)
var _ memory.Expirer = (*RedisMessages)(nil)

// NewRedisMessages 创建 Redis 消息存储
func NewRedisMessages(client redis.UniversalClient, config StoreConfig) *RedisMessages {
	return &RedisMessages{
		client:    client,
		keyPrefix: redisPrefix(config.Redis.KeyPrefix) + "messages:",
	}
}

func (s *RedisMessages) convKey(convID string) string {
	return s.keyPrefix + "conv:" + convID
}

func (s *RedisMessages) indexKey() string {
	return s.keyPrefix + "index"
}

// Close closes the store
func (s *RedisMessages) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisMessages) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Append implements memory.GptsMessageMemory.
func (s *RedisMessages) Append(ctx context.Context, msg *types.AgentMessage) error {
	if msg == nil || msg.ConvID == "" {
		return fmt.Errorf("%w: message requires conv_id", memory.ErrInvalidInput)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	now := time.Now()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.convKey(msg.ConvID), redis.Z{Score: float64(msg.Rounds), Member: data})
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.Unix()), Member: msg.ConvID})
		return nil
	})
	return err
}

// GetByConvID implements memory.GptsMessageMemory.
func (s *RedisMessages) GetByConvID(ctx context.Context, convID string) ([]*types.AgentMessage, error) {
	return s.filter(ctx, convID, func(*types.AgentMessage) bool { return true })
}

// GetBetweenAgents implements memory.GptsMessageMemory.
func (s *RedisMessages) GetBetweenAgents(ctx context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error) {
	return s.filter(ctx, convID, func(m *types.AgentMessage) bool { return memory.Between(m, agent1, agent2, goal) })
}

func (s *RedisMessages) filter(ctx context.Context, convID string, keep func(*types.AgentMessage) bool) ([]*types.AgentMessage, error) {
	values, err := s.client.ZRange(ctx, s.convKey(convID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.AgentMessage, 0, len(values))
	for _, v := range values {
		msg, err := decodeMessage(v)
		if err != nil {
			return nil, err
		}
		if keep(msg) {
			out = append(out, msg)
		}
	}
	return out, nil
}

// GetLastMessage implements memory.GptsMessageMemory.
func (s *RedisMessages) GetLastMessage(ctx context.Context, convID string) (*types.AgentMessage, error) {
	values, err := s.client.ZRevRange(ctx, s.convKey(convID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, memory.ErrNotFound
	}
	return decodeMessage(values[0])
}

// ExpireBefore implements memory.Expirer.
func (s *RedisMessages) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	convIDs, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, convID := range convIDs {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.convKey(convID))
			pipe.ZRem(ctx, s.indexKey(), convID)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return len(convIDs), nil
}

func decodeMessage(raw string) (*types.AgentMessage, error) {
	var msg types.AgentMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}
