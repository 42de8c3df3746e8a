// MockStores 计划与消息存储的错误注入包装。
//
// 底层使用内存实现，测试可以按方法注入错误并统计调用次数。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// 可注入错误的方法名
const (
	OpBatchSave      = "BatchSave"
	OpGetPlans       = "GetByConvID"
	OpGetPlansByNum  = "GetByConvIDAndNum"
	OpGetTodoPlans   = "GetTodoPlans"
	OpCompleteTask   = "CompleteTask"
	OpUpdateTask     = "UpdateTask"
	OpRemovePlans    = "RemoveByConvID"
	OpAppend         = "Append"
	OpGetMessages    = "GetMessages"
	OpGetBetween     = "GetBetweenAgents"
	OpGetLastMessage = "GetLastMessage"
)

// MockStores 一对共享错误注入表的计划存储与消息存储
type MockStores struct {
	Plans    *MockPlans
	Messages *MockMessages

	inj *injector
}

type injector struct {
	mu    sync.Mutex
	errs  map[string]error
	calls map[string]int
}

func (i *injector) enter(op string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls[op]++
	return i.errs[op]
}

// NewMockStores 创建存储
func NewMockStores() *MockStores {
	inj := &injector{errs: make(map[string]error), calls: make(map[string]int)}
	return &MockStores{
		Plans:    &MockPlans{inner: memory.NewInMemoryPlans(), inj: inj},
		Messages: &MockMessages{inner: memory.NewInMemoryMessages(), inj: inj},
		inj:      inj,
	}
}

// WithError 指定方法返回错误，err 为 nil 时清除
func (s *MockStores) WithError(op string, err error) *MockStores {
	s.inj.mu.Lock()
	defer s.inj.mu.Unlock()
	if err == nil {
		delete(s.inj.errs, op)
	} else {
		s.inj.errs[op] = err
	}
	return s
}

// Calls 返回方法调用次数
func (s *MockStores) Calls(op string) int {
	s.inj.mu.Lock()
	defer s.inj.mu.Unlock()
	return s.inj.calls[op]
}

// Memory 基于本存储创建 GptsMemory
func (s *MockStores) Memory(opts ...memory.Option) *memory.GptsMemory {
	return memory.NewGptsMemory(s.Plans, s.Messages, opts...)
}

// MockPlans 可注入错误的计划存储
type MockPlans struct {
	inner *memory.InMemoryPlans
	inj   *injector
}

// MockMessages 可注入错误的消息存储
type MockMessages struct {
	inner *memory.InMemoryMessages
	inj   *injector
}

var (
	_ memory.GptsPlansMemory   = (*MockPlans)(nil)
	_ memory.GptsMessageMemory = (*MockMessages)(nil)
)

// BatchSave implements memory.GptsPlansMemory.
func (s *MockPlans) BatchSave(ctx context.Context, plans []*types.GptsPlan) error {
	if err := s.inj.enter(OpBatchSave); err != nil {
		return err
	}
	return s.inner.BatchSave(ctx, plans)
}

// GetByConvID implements memory.GptsPlansMemory.
func (s *MockPlans) GetByConvID(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	if err := s.inj.enter(OpGetPlans); err != nil {
		return nil, err
	}
	return s.inner.GetByConvID(ctx, convID)
}

// GetByConvIDAndNum implements memory.GptsPlansMemory.
func (s *MockPlans) GetByConvIDAndNum(ctx context.Context, convID string, taskIDs []string) ([]*types.GptsPlan, error) {
	if err := s.inj.enter(OpGetPlansByNum); err != nil {
		return nil, err
	}
	return s.inner.GetByConvIDAndNum(ctx, convID, taskIDs)
}

// GetTodoPlans implements memory.GptsPlansMemory.
func (s *MockPlans) GetTodoPlans(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	if err := s.inj.enter(OpGetTodoPlans); err != nil {
		return nil, err
	}
	return s.inner.GetTodoPlans(ctx, convID)
}

// CompleteTask implements memory.GptsPlansMemory.
func (s *MockPlans) CompleteTask(ctx context.Context, convID, taskID, result string) error {
	if err := s.inj.enter(OpCompleteTask); err != nil {
		return err
	}
	return s.inner.CompleteTask(ctx, convID, taskID, result)
}

// UpdateTask implements memory.GptsPlansMemory.
func (s *MockPlans) UpdateTask(ctx context.Context, convID, taskID string, update types.PlanUpdate) error {
	if err := s.inj.enter(OpUpdateTask); err != nil {
		return err
	}
	return s.inner.UpdateTask(ctx, convID, taskID, update)
}

// RemoveByConvID implements memory.GptsPlansMemory.
func (s *MockPlans) RemoveByConvID(ctx context.Context, convID string) error {
	if err := s.inj.enter(OpRemovePlans); err != nil {
		return err
	}
	return s.inner.RemoveByConvID(ctx, convID)
}

// Append implements memory.GptsMessageMemory.
func (s *MockMessages) Append(ctx context.Context, msg *types.AgentMessage) error {
	if err := s.inj.enter(OpAppend); err != nil {
		return err
	}
	return s.inner.Append(ctx, msg)
}

// GetByConvID implements memory.GptsMessageMemory.
func (s *MockMessages) GetByConvID(ctx context.Context, convID string) ([]*types.AgentMessage, error) {
	if err := s.inj.enter(OpGetMessages); err != nil {
		return nil, err
	}
	return s.inner.GetByConvID(ctx, convID)
}

// GetBetweenAgents implements memory.GptsMessageMemory.
func (s *MockMessages) GetBetweenAgents(ctx context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error) {
	if err := s.inj.enter(OpGetBetween); err != nil {
		return nil, err
	}
	return s.inner.GetBetweenAgents(ctx, convID, agent1, agent2, goal)
}

// GetLastMessage implements memory.GptsMessageMemory.
func (s *MockMessages) GetLastMessage(ctx context.Context, convID string) (*types.AgentMessage, error) {
	if err := s.inj.enter(OpGetLastMessage); err != nil {
		return nil, err
	}
	return s.inner.GetLastMessage(ctx, convID)
}
