package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// RedisPlans GptsPlansMemory 的 Redis 实现。
// 每个会话一个 Hash（field 为 sub_task_id），另有一个 Sorted Set 按最后修改时间索引会话。
type RedisPlans struct {
	client    redis.UniversalClient
	keyPrefix string
	retry     RetryConfig
}

var _ memory.GptsPlansMemory = (*RedisPlans)(nil)
var _ memory.PlanReplacer = (*RedisPlans)(nil)
var _ memory.Expirer = (*RedisPlans)(nil)

// NewRedisPlans 创建 Redis 计划存储
func NewRedisPlans(client redis.UniversalClient, config StoreConfig) *RedisPlans {
	return &RedisPlans{
		client:    client,
		keyPrefix: redisPrefix(config.Redis.KeyPrefix) + "plans:",
		retry:     config.Retry,
	}
}

func (s *RedisPlans) convKey(convID string) string {
	return s.keyPrefix + "conv:" + convID
}

func (s *RedisPlans) indexKey() string {
	return s.keyPrefix + "index"
}

// Close closes the store
func (s *RedisPlans) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisPlans) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// BatchSave implements memory.GptsPlansMemory.
func (s *RedisPlans) BatchSave(ctx context.Context, plans []*types.GptsPlan) error {
	byConv := make(map[string][]*types.GptsPlan)
	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		if p == nil || p.ConvID == "" || p.SubTaskID == "" {
			return fmt.Errorf("%w: plan requires conv_id and sub_task_id", memory.ErrInvalidInput)
		}
		key := p.ConvID + "/" + p.SubTaskID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate sub_task_id %s", memory.ErrInvalidInput, p.SubTaskID)
		}
		seen[key] = struct{}{}
		byConv[p.ConvID] = append(byConv[p.ConvID], p)
	}
	if len(plans) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byConv))
	for convID := range byConv {
		keys = append(keys, s.convKey(convID))
	}

	now := time.Now()
	return watchRetry(ctx, s.client, s.retry, func(tx *redis.Tx) error {
		for convID, group := range byConv {
			for _, p := range group {
				exists, err := tx.HExists(ctx, s.convKey(convID), p.SubTaskID).Result()
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%w: sub_task_id %s already exists", memory.ErrInvalidInput, p.SubTaskID)
				}
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for convID, group := range byConv {
				fields := make([]any, 0, len(group)*2)
				for _, p := range group {
					row := p.Clone()
					if row.CreatedAt.IsZero() {
						row.CreatedAt = now
					}
					row.UpdatedAt = now
					data, err := json.Marshal(row)
					if err != nil {
						return fmt.Errorf("failed to marshal plan: %w", err)
					}
					fields = append(fields, row.SubTaskID, data)
				}
				pipe.HSet(ctx, s.convKey(convID), fields...)
				pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.Unix()), Member: convID})
			}
			return nil
		})
		return err
	}, keys...)
}

// GetByConvID implements memory.GptsPlansMemory.
func (s *RedisPlans) GetByConvID(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.list(ctx, convID, func(*types.GptsPlan) bool { return true })
}

// GetTodoPlans implements memory.GptsPlansMemory.
func (s *RedisPlans) GetTodoPlans(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.list(ctx, convID, func(p *types.GptsPlan) bool { return p.State.IsPending() })
}

func (s *RedisPlans) list(ctx context.Context, convID string, keep func(*types.GptsPlan) bool) ([]*types.GptsPlan, error) {
	values, err := s.client.HVals(ctx, s.convKey(convID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.GptsPlan, 0, len(values))
	for _, v := range values {
		var p types.GptsPlan
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		if keep(&p) {
			out = append(out, &p)
		}
	}
	memory.SortPlans(out)
	return out, nil
}

// GetByConvIDAndNum implements memory.GptsPlansMemory.
func (s *RedisPlans) GetByConvIDAndNum(ctx context.Context, convID string, taskIDs []string) ([]*types.GptsPlan, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.convKey(convID), taskIDs...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.GptsPlan, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var p types.GptsPlan
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// CompleteTask implements memory.GptsPlansMemory.
func (s *RedisPlans) CompleteTask(ctx context.Context, convID, taskID, result string) error {
	state := types.PlanStateComplete
	return s.UpdateTask(ctx, convID, taskID, types.PlanUpdate{State: &state, Result: &result})
}

// UpdateTask implements memory.GptsPlansMemory.
func (s *RedisPlans) UpdateTask(ctx context.Context, convID, taskID string, update types.PlanUpdate) error {
	key := s.convKey(convID)
	return watchRetry(ctx, s.client, s.retry, func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, taskID).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s/%s", memory.ErrPlanNotFound, convID, taskID)
		}
		if err != nil {
			return err
		}

		var p types.GptsPlan
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		update.Apply(&p)
		p.UpdatedAt = time.Now()
		next, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, taskID, next)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(p.UpdatedAt.Unix()), Member: convID})
			return nil
		})
		return err
	}, key)
}

// RemoveByConvID implements memory.GptsPlansMemory.
func (s *RedisPlans) RemoveByConvID(ctx context.Context, convID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.convKey(convID))
		pipe.ZRem(ctx, s.indexKey(), convID)
		return nil
	})
	return err
}

// ReplacePlans implements memory.PlanReplacer. DEL 与 HSET 在同一个 MULTI 内执行。
func (s *RedisPlans) ReplacePlans(ctx context.Context, convID string, plans []*types.GptsPlan) error {
	if err := memory.ValidateReplacement(convID, plans); err != nil {
		return err
	}
	now := time.Now()
	fields := make([]any, 0, len(plans)*2)
	for _, p := range plans {
		row := p.Clone()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
		fields = append(fields, row.SubTaskID, data)
	}

	key := s.convKey(convID)
	return watchRetry(ctx, s.client, s.retry, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(fields) == 0 {
				pipe.ZRem(ctx, s.indexKey(), convID)
				return nil
			}
			pipe.HSet(ctx, key, fields...)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.Unix()), Member: convID})
			return nil
		})
		return err
	}, key)
}

// ExpireBefore implements memory.Expirer.
func (s *RedisPlans) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	convIDs, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, convID := range convIDs {
		if err := s.RemoveByConvID(ctx, convID); err != nil {
			return 0, err
		}
	}
	return len(convIDs), nil
}
