package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/agentteam/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrPlanNotFound = errors.New("plan task not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// GptsPlansMemory 计划存储
type GptsPlansMemory interface {
	// BatchSave 保存一批任务（同一 conv_id 下 SubTaskID 唯一）
	BatchSave(ctx context.Context, plans []*types.GptsPlan) error
	// GetByConvID 按 SubTaskNum 升序返回会话的全部任务
	GetByConvID(ctx context.Context, convID string) ([]*types.GptsPlan, error)
	// GetByConvIDAndNum 按给定 id 顺序返回任务，不存在的 id 被跳过
	GetByConvIDAndNum(ctx context.Context, convID string, taskIDs []string) ([]*types.GptsPlan, error)
	// GetTodoPlans 返回 TODO / RETRYING 状态的任务
	GetTodoPlans(ctx context.Context, convID string) ([]*types.GptsPlan, error)
	// CompleteTask 标记完成并写入结果
	CompleteTask(ctx context.Context, convID, taskID, result string) error
	// UpdateTask 原子修改单个任务
	UpdateTask(ctx context.Context, convID, taskID string, update types.PlanUpdate) error
	// RemoveByConvID 删除会话的全部任务
	RemoveByConvID(ctx context.Context, convID string) error
}

// GptsMessageMemory 消息存储，只追加
type GptsMessageMemory interface {
	Append(ctx context.Context, msg *types.AgentMessage) error
	// GetByConvID 按 rounds 升序返回
	GetByConvID(ctx context.Context, convID string) ([]*types.AgentMessage, error)
	// GetBetweenAgents 返回两个智能体之间（任一方向）的消息，goal 非空时按 CurrentGoal 过滤
	GetBetweenAgents(ctx context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error)
	// GetLastMessage 返回 rounds 最大的消息，没有时返回 ErrNotFound
	GetLastMessage(ctx context.Context, convID string) (*types.AgentMessage, error)
}

// PlanReplacer 能在一次原子操作内替换会话全部计划的存储。
// 失败时旧计划保持不变。
type PlanReplacer interface {
	ReplacePlans(ctx context.Context, convID string, plans []*types.GptsPlan) error
}

// ValidateReplacement 校验替换用的计划：全部属于 convID，SubTaskID 非空且不重复
func ValidateReplacement(convID string, plans []*types.GptsPlan) error {
	if convID == "" {
		return fmt.Errorf("%w: conv_id is empty", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		if p == nil || p.SubTaskID == "" {
			return fmt.Errorf("%w: plan requires sub_task_id", ErrInvalidInput)
		}
		if p.ConvID != convID {
			return fmt.Errorf("%w: plan %s belongs to %q, not %q", ErrInvalidInput, p.SubTaskID, p.ConvID, convID)
		}
		if _, dup := seen[p.SubTaskID]; dup {
			return fmt.Errorf("%w: duplicate sub_task_id %s", ErrInvalidInput, p.SubTaskID)
		}
		seen[p.SubTaskID] = struct{}{}
	}
	return nil
}

// Expirer 支持按最后活跃时间清理的存储
type Expirer interface {
	ExpireBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Between 判断消息是否在两个智能体之间
func Between(m *types.AgentMessage, agent1, agent2, goal string) bool {
	if goal != "" && m.CurrentGoal != goal {
		return false
	}
	return (m.Sender == agent1 && m.Receiver == agent2) || (m.Sender == agent2 && m.Receiver == agent1)
}
