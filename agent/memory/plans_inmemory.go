package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentteam/types"
)

// InMemoryPlans GptsPlansMemory 的内存实现，重启后数据丢失
type InMemoryPlans struct {
	mu     sync.RWMutex
	convs  map[string]*planTable
	closed bool
}

type planTable struct {
	rows      map[string]*types.GptsPlan
	updatedAt time.Time
}

var _ PlanReplacer = (*InMemoryPlans)(nil)

// NewInMemoryPlans 创建内存计划存储
func NewInMemoryPlans() *InMemoryPlans {
	return &InMemoryPlans{convs: make(map[string]*planTable)}
}

// BatchSave implements GptsPlansMemory.
func (s *InMemoryPlans) BatchSave(_ context.Context, plans []*types.GptsPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	// 先整体校验，保证批量写入要么全部成功要么不写
	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		if p == nil || p.ConvID == "" || p.SubTaskID == "" {
			return fmt.Errorf("%w: plan requires conv_id and sub_task_id", ErrInvalidInput)
		}
		key := p.ConvID + "/" + p.SubTaskID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate sub_task_id %s", ErrInvalidInput, p.SubTaskID)
		}
		if t, ok := s.convs[p.ConvID]; ok {
			if _, exists := t.rows[p.SubTaskID]; exists {
				return fmt.Errorf("%w: sub_task_id %s already exists", ErrInvalidInput, p.SubTaskID)
			}
		}
		seen[key] = struct{}{}
	}

	now := time.Now()
	for _, p := range plans {
		t := s.table(p.ConvID)
		row := p.Clone()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		t.rows[row.SubTaskID] = row
		t.updatedAt = now
	}
	return nil
}

func (s *InMemoryPlans) table(convID string) *planTable {
	t, ok := s.convs[convID]
	if !ok {
		t = &planTable{rows: make(map[string]*types.GptsPlan)}
		s.convs[convID] = t
	}
	return t
}

// GetByConvID implements GptsPlansMemory.
func (s *InMemoryPlans) GetByConvID(_ context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.list(convID, func(*types.GptsPlan) bool { return true })
}

// GetTodoPlans implements GptsPlansMemory.
func (s *InMemoryPlans) GetTodoPlans(_ context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.list(convID, func(p *types.GptsPlan) bool { return p.State.IsPending() })
}

func (s *InMemoryPlans) list(convID string, keep func(*types.GptsPlan) bool) ([]*types.GptsPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.convs[convID]
	if !ok {
		return nil, nil
	}
	out := make([]*types.GptsPlan, 0, len(t.rows))
	for _, p := range t.rows {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	SortPlans(out)
	return out, nil
}

// GetByConvIDAndNum implements GptsPlansMemory.
func (s *InMemoryPlans) GetByConvIDAndNum(_ context.Context, convID string, taskIDs []string) ([]*types.GptsPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.convs[convID]
	if !ok {
		return nil, nil
	}
	out := make([]*types.GptsPlan, 0, len(taskIDs))
	for _, id := range taskIDs {
		if p, ok := t.rows[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// CompleteTask implements GptsPlansMemory.
func (s *InMemoryPlans) CompleteTask(ctx context.Context, convID, taskID, result string) error {
	state := types.PlanStateComplete
	return s.UpdateTask(ctx, convID, taskID, types.PlanUpdate{State: &state, Result: &result})
}

// UpdateTask implements GptsPlansMemory.
func (s *InMemoryPlans) UpdateTask(_ context.Context, convID, taskID string, update types.PlanUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	t, ok := s.convs[convID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrPlanNotFound, convID, taskID)
	}
	p, ok := t.rows[taskID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrPlanNotFound, convID, taskID)
	}
	update.Apply(p)
	p.UpdatedAt = time.Now()
	t.updatedAt = p.UpdatedAt
	return nil
}

// RemoveByConvID implements GptsPlansMemory.
func (s *InMemoryPlans) RemoveByConvID(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.convs, convID)
	return nil
}

// ReplacePlans implements PlanReplacer.
func (s *InMemoryPlans) ReplacePlans(_ context.Context, convID string, plans []*types.GptsPlan) error {
	if err := ValidateReplacement(convID, plans); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if len(plans) == 0 {
		delete(s.convs, convID)
		return nil
	}
	now := time.Now()
	t := &planTable{rows: make(map[string]*types.GptsPlan, len(plans)), updatedAt: now}
	for _, p := range plans {
		row := p.Clone()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		t.rows[row.SubTaskID] = row
	}
	s.convs[convID] = t
	return nil
}

// ExpireBefore implements Expirer.
func (s *InMemoryPlans) ExpireBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for convID, t := range s.convs {
		if t.updatedAt.Before(cutoff) {
			delete(s.convs, convID)
			removed++
		}
	}
	return removed, nil
}

// Close closes the store
func (s *InMemoryPlans) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SortPlans 按 SubTaskNum、SubTaskID 排序
func SortPlans(plans []*types.GptsPlan) {
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].SubTaskNum != plans[j].SubTaskNum {
			return plans[i].SubTaskNum < plans[j].SubTaskNum
		}
		return plans[i].SubTaskID < plans[j].SubTaskID
	})
}
