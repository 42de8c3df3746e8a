package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentteam/types"
)

// InMemoryMessages GptsMessageMemory 的内存实现
type InMemoryMessages struct {
	mu     sync.RWMutex
	convs  map[string]*messageLog
	closed bool
}

type messageLog struct {
	items     []*types.AgentMessage
	updatedAt time.Time
}

// NewInMemoryMessages 创建内存消息存储
func NewInMemoryMessages() *InMemoryMessages {
	return &InMemoryMessages{convs: make(map[string]*messageLog)}
}

// Append implements GptsMessageMemory.
func (s *InMemoryMessages) Append(_ context.Context, msg *types.AgentMessage) error {
	if msg == nil || msg.ConvID == "" {
		return fmt.Errorf("%w: message requires conv_id", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	l, ok := s.convs[msg.ConvID]
	if !ok {
		l = &messageLog{}
		s.convs[msg.ConvID] = l
	}
	l.items = append(l.items, msg.Clone())
	sort.SliceStable(l.items, func(i, j int) bool { return l.items[i].Rounds < l.items[j].Rounds })
	l.updatedAt = time.Now()
	return nil
}

// GetByConvID implements GptsMessageMemory.
func (s *InMemoryMessages) GetByConvID(_ context.Context, convID string) ([]*types.AgentMessage, error) {
	return s.filter(convID, func(*types.AgentMessage) bool { return true })
}

// GetBetweenAgents implements GptsMessageMemory.
func (s *InMemoryMessages) GetBetweenAgents(_ context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error) {
	return s.filter(convID, func(m *types.AgentMessage) bool { return Between(m, agent1, agent2, goal) })
}

func (s *InMemoryMessages) filter(convID string, keep func(*types.AgentMessage) bool) ([]*types.AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	l, ok := s.convs[convID]
	if !ok {
		return nil, nil
	}
	out := make([]*types.AgentMessage, 0, len(l.items))
	for _, m := range l.items {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

// GetLastMessage implements GptsMessageMemory.
func (s *InMemoryMessages) GetLastMessage(_ context.Context, convID string) (*types.AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	l, ok := s.convs[convID]
	if !ok || len(l.items) == 0 {
		return nil, ErrNotFound
	}
	return l.items[len(l.items)-1].Clone(), nil
}

// ExpireBefore implements Expirer.
func (s *InMemoryMessages) ExpireBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for convID, l := range s.convs {
		if l.updatedAt.Before(cutoff) {
			delete(s.convs, convID)
			removed++
		}
	}
	return removed, nil
}

// Close closes the store
func (s *InMemoryMessages) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
