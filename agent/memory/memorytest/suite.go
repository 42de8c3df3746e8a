// Package memorytest 为 GptsPlansMemory / GptsMessageMemory 的各个实现提供统一的契约测试。
package memorytest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// NewPlan 构造测试任务
func NewPlan(convID string, num int, agent, rely string) *types.GptsPlan {
	return &types.GptsPlan{
		ConvID:         convID,
		SubTaskNum:     num,
		SubTaskID:      fmt.Sprint(num),
		SubTaskTitle:   fmt.Sprintf("task %d", num),
		SubTaskContent: fmt.Sprintf("do step %d", num),
		SubTaskAgent:   agent,
		Rely:           rely,
		State:          types.PlanStateTodo,
		MaxRetryTimes:  3,
	}
}

// NewMessage 构造测试消息
func NewMessage(convID, sender, receiver, goal, content string, rounds int) *types.AgentMessage {
	return &types.AgentMessage{
		MessageID:   fmt.Sprintf("%s-%d", convID, rounds),
		ConvID:      convID,
		Sender:      sender,
		Receiver:    receiver,
		Role:        types.MessageRoleHuman,
		CurrentGoal: goal,
		Content:     content,
		Rounds:      rounds,
	}
}

// RunPlansSuite 运行计划存储契约测试
func RunPlansSuite(t *testing.T, newStore func(t *testing.T) memory.GptsPlansMemory) {
	t.Run("BatchSaveAndOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{
			NewPlan("c1", 3, "C", "1,2"),
			NewPlan("c1", 1, "A", ""),
			NewPlan("c1", 2, "B", ""),
			NewPlan("c2", 1, "X", ""),
		}))

		plans, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, plans, 3)
		assert.Equal(t, []string{"1", "2", "3"}, ids(plans))
		assert.Equal(t, "1,2", plans[2].Rely)
		assert.Equal(t, types.PlanStateTodo, plans[0].State)

		empty, err := s.GetByConvID(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("GetByConvIDAndNumKeepsRequestOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{
			NewPlan("c1", 1, "A", ""), NewPlan("c1", 2, "B", ""), NewPlan("c1", 3, "C", ""),
		}))
		plans, err := s.GetByConvIDAndNum(ctx, "c1", []string{"3", "1", "9"})
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "1"}, ids(plans))
	})

	t.Run("UpdateAndComplete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{
			NewPlan("c1", 1, "A", ""), NewPlan("c1", 2, "B", "1"),
		}))

		state := types.PlanStateRetrying
		retry := 1
		result := "failed once"
		require.NoError(t, s.UpdateTask(ctx, "c1", "2", types.PlanUpdate{State: &state, RetryTimes: &retry, Result: &result}))
		require.NoError(t, s.CompleteTask(ctx, "c1", "1", "R1"))

		plans, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, types.PlanStateComplete, plans[0].State)
		assert.Equal(t, "R1", plans[0].Result)
		assert.Equal(t, types.PlanStateRetrying, plans[1].State)
		assert.Equal(t, 1, plans[1].RetryTimes)
		assert.Equal(t, "failed once", plans[1].Result)
		assert.Equal(t, 3, plans[1].MaxRetryTimes)

		todo, err := s.GetTodoPlans(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"2"}, ids(todo))

		err = s.UpdateTask(ctx, "c1", "42", types.PlanUpdate{State: &state})
		assert.True(t, errors.Is(err, memory.ErrPlanNotFound), "got %v", err)
	})

	t.Run("RemoveByConvID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{NewPlan("c1", 1, "A", ""), NewPlan("c2", 1, "A", "")}))
		require.NoError(t, s.RemoveByConvID(ctx, "c1"))

		plans, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, plans)
		plans, err = s.GetByConvID(ctx, "c2")
		require.NoError(t, err)
		assert.Len(t, plans, 1)

		// 删除后可以用相同 id 重新规划
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{NewPlan("c1", 1, "B", "")}))
		plans, err = s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "B", plans[0].SubTaskAgent)
	})

	t.Run("ReturnedRowsAreCopies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{NewPlan("c1", 1, "A", "")}))
		plans, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		plans[0].State = types.PlanStateFailed

		again, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, types.PlanStateTodo, again[0].State)
	})

	t.Run("ReplacePlans", func(t *testing.T) {
		s := newStore(t)
		r, ok := s.(memory.PlanReplacer)
		if !ok {
			t.Skip("store does not replace atomically")
		}
		ctx := context.Background()
		require.NoError(t, s.BatchSave(ctx, []*types.GptsPlan{
			NewPlan("c1", 1, "A", ""), NewPlan("c1", 2, "B", "1"), NewPlan("c2", 1, "X", ""),
		}))

		require.NoError(t, r.ReplacePlans(ctx, "c1", []*types.GptsPlan{NewPlan("c1", 1, "C", "")}))
		plans, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "C", plans[0].SubTaskAgent)

		// 非法批次不改动已有计划
		err = r.ReplacePlans(ctx, "c1", []*types.GptsPlan{NewPlan("c1", 1, "D", ""), NewPlan("c1", 1, "E", "")})
		assert.True(t, errors.Is(err, memory.ErrInvalidInput), "got %v", err)
		plans, err = s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "C", plans[0].SubTaskAgent)

		require.NoError(t, r.ReplacePlans(ctx, "c1", nil))
		plans, err = s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, plans)

		other, err := s.GetByConvID(ctx, "c2")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})
}

// RunMessagesSuite 运行消息存储契约测试
func RunMessagesSuite(t *testing.T, newStore func(t *testing.T) memory.GptsMessageMemory) {
	t.Run("AppendAndOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		m0 := NewMessage("c1", "user", "coder", "g", "hello", 0)
		m0.Context = map[string]any{"k": "v"}
		m1 := NewMessage("c1", "coder", "user", "g", "hi", 1)
		m1.ActionReport = &types.ActionOutput{IsExeSuccess: true, Content: "21", NextSpeakers: []string{"x"}}
		m1.ReviewInfo = &types.ReviewInfo{Approve: true}
		require.NoError(t, s.Append(ctx, m1))
		require.NoError(t, s.Append(ctx, m0))
		require.NoError(t, s.Append(ctx, NewMessage("c2", "user", "coder", "g", "other", 0)))

		msgs, err := s.GetByConvID(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, 0, msgs[0].Rounds)
		assert.Equal(t, "v", msgs[0].Context["k"])
		require.NotNil(t, msgs[1].ActionReport)
		assert.Equal(t, "21", msgs[1].ActionReport.Content)
		assert.Equal(t, []string{"x"}, msgs[1].ActionReport.NextSpeakers)
		require.NotNil(t, msgs[1].ReviewInfo)
		assert.True(t, msgs[1].ReviewInfo.Approve)

		last, err := s.GetLastMessage(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "hi", last.Content)
	})

	t.Run("GetBetweenAgentsFiltersGoal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, m := range []*types.AgentMessage{
			NewMessage("c1", "user", "coder", "g1", "a", 0),
			NewMessage("c1", "coder", "user", "g1", "b", 1),
			NewMessage("c1", "user", "coder", "g2", "c", 2),
			NewMessage("c1", "manager", "coder", "g1", "d", 3),
			NewMessage("c1", "coder", "coder", "g1", "e", 4),
		} {
			require.NoError(t, s.Append(ctx, m), "message %d", i)
		}

		got, err := s.GetBetweenAgents(ctx, "c1", "coder", "user", "g1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, contents(got))

		got, err = s.GetBetweenAgents(ctx, "c1", "user", "coder", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, contents(got))
	})

	t.Run("LastMessageNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetLastMessage(context.Background(), "nothing")
		assert.True(t, errors.Is(err, memory.ErrNotFound), "got %v", err)
	})
}

func ids(plans []*types.GptsPlan) []string {
	out := make([]string, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.SubTaskID)
	}
	return out
}

func contents(msgs []*types.AgentMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
