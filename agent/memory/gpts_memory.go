package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/internal/metrics"
	"github.com/BaSui01/agentteam/types"
)

// subscriberBuffer 每个订阅者的缓冲，满了之后丢弃推送
const subscriberBuffer = 64

// GptsMemory 计划与消息的唯一写入入口。
// 消息在这里完成校验、分配 MessageID 与 rounds，然后再写入底层存储。
type GptsMemory struct {
	plans    GptsPlansMemory
	messages GptsMessageMemory
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu     sync.Mutex
	convs  map[string]*convState
	subs   map[string]map[uint64]chan *types.AgentMessage
	nextID uint64
}

type convState struct {
	mu       sync.Mutex
	loaded   bool
	next     int
	lastSeen time.Time
}

// Option GptsMemory 选项
type Option func(*GptsMemory)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *GptsMemory) { m.logger = logger }
}

// WithMetrics 设置指标
func WithMetrics(c *metrics.Collector) Option {
	return func(m *GptsMemory) { m.metrics = c }
}

// NewGptsMemory 创建门面，plans/messages 为 nil 时使用内存实现
func NewGptsMemory(plans GptsPlansMemory, messages GptsMessageMemory, opts ...Option) *GptsMemory {
	if plans == nil {
		plans = NewInMemoryPlans()
	}
	if messages == nil {
		messages = NewInMemoryMessages()
	}
	m := &GptsMemory{
		plans:    plans,
		messages: messages,
		logger:   zap.NewNop(),
		convs:    make(map[string]*convState),
		subs:     make(map[string]map[uint64]chan *types.AgentMessage),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "gpts_memory"))
	return m
}

// PlansMemory 返回底层计划存储
func (m *GptsMemory) PlansMemory() GptsPlansMemory { return m.plans }

// MessageMemory 返回底层消息存储
func (m *GptsMemory) MessageMemory() GptsMessageMemory { return m.messages }

func (m *GptsMemory) conv(convID string) *convState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.convs[convID]
	if !ok {
		st = &convState{}
		m.convs[convID] = st
	}
	return st
}

// AppendMessage 校验并持久化消息，返回带 MessageID 与 rounds 的副本。
// 既没有内容也没有动作结果的消息返回 VALIDATION_ERROR。
func (m *GptsMemory) AppendMessage(ctx context.Context, msg *types.AgentMessage) (*types.AgentMessage, error) {
	if msg == nil {
		return nil, types.NewValidationError("message is nil")
	}
	if msg.ConvID == "" {
		return nil, types.NewValidationError("message from %s has no conv_id", msg.Sender)
	}
	if !msg.HasPayload() {
		return nil, types.NewValidationError("message from %s to %s has neither content nor action report", msg.Sender, msg.Receiver)
	}

	st := m.conv(msg.ConvID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.loaded {
		last, err := m.messages.GetLastMessage(ctx, msg.ConvID)
		switch {
		case err == nil:
			st.next = last.Rounds + 1
		case errors.Is(err, ErrNotFound):
			st.next = 0
		default:
			return nil, fmt.Errorf("load last message: %w", err)
		}
		st.loaded = true
	}

	stored := msg.Clone()
	if stored.MessageID == "" {
		stored.MessageID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Rounds = st.next

	if err := m.messages.Append(ctx, stored); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	st.next++
	st.lastSeen = time.Now()

	m.logger.Debug("message appended",
		zap.String("conv_id", stored.ConvID),
		zap.String("sender", stored.Sender),
		zap.String("receiver", stored.Receiver),
		zap.Int("rounds", stored.Rounds))
	m.publish(stored)
	return stored.Clone(), nil
}

// Messages 返回会话全部消息
func (m *GptsMemory) Messages(ctx context.Context, convID string) ([]*types.AgentMessage, error) {
	return m.messages.GetByConvID(ctx, convID)
}

// MessagesBetween 返回两个智能体之间某个目标下的消息
func (m *GptsMemory) MessagesBetween(ctx context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error) {
	return m.messages.GetBetweenAgents(ctx, convID, agent1, agent2, goal)
}

// LastMessage 返回会话最后一条消息
func (m *GptsMemory) LastMessage(ctx context.Context, convID string) (*types.AgentMessage, error) {
	return m.messages.GetLastMessage(ctx, convID)
}

// SavePlans 替换会话的计划。存储实现 PlanReplacer 时一次原子替换；
// 否则先删后写，写入失败时把旧计划写回。
func (m *GptsMemory) SavePlans(ctx context.Context, convID string, plans []*types.GptsPlan) error {
	if r, ok := m.plans.(PlanReplacer); ok {
		if err := r.ReplacePlans(ctx, convID, plans); err != nil {
			return fmt.Errorf("replace plans: %w", err)
		}
	} else if err := m.replacePlans(ctx, convID, plans); err != nil {
		return err
	}
	for range plans {
		m.metrics.RecordPlanTransition(string(types.PlanStateTodo))
	}
	m.logger.Info("plans saved", zap.String("conv_id", convID), zap.Int("count", len(plans)))
	return nil
}

func (m *GptsMemory) replacePlans(ctx context.Context, convID string, plans []*types.GptsPlan) error {
	if err := ValidateReplacement(convID, plans); err != nil {
		return err
	}
	old, err := m.plans.GetByConvID(ctx, convID)
	if err != nil {
		return fmt.Errorf("load old plans: %w", err)
	}
	if err := m.plans.RemoveByConvID(ctx, convID); err != nil {
		return fmt.Errorf("remove old plans: %w", err)
	}
	if err := m.plans.BatchSave(ctx, plans); err != nil {
		// 写入可能部分成功，清掉后恢复旧计划
		restore := errors.Join(m.plans.RemoveByConvID(ctx, convID), m.plans.BatchSave(ctx, old))
		if restore != nil {
			m.logger.Error("restore old plans failed", zap.String("conv_id", convID), zap.Error(restore))
		}
		return fmt.Errorf("save plans: %w", err)
	}
	return nil
}

// Plans 返回会话全部任务
func (m *GptsMemory) Plans(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return m.plans.GetByConvID(ctx, convID)
}

// PlansByIDs 按 id 顺序返回任务
func (m *GptsMemory) PlansByIDs(ctx context.Context, convID string, ids []string) ([]*types.GptsPlan, error) {
	return m.plans.GetByConvIDAndNum(ctx, convID, ids)
}

// TodoPlans 返回待执行任务
func (m *GptsMemory) TodoPlans(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return m.plans.GetTodoPlans(ctx, convID)
}

// CompleteTask 标记任务完成
func (m *GptsMemory) CompleteTask(ctx context.Context, convID, taskID, result string) error {
	if err := m.plans.CompleteTask(ctx, convID, taskID, result); err != nil {
		return err
	}
	m.metrics.RecordPlanTransition(string(types.PlanStateComplete))
	return nil
}

// UpdateTask 修改任务
func (m *GptsMemory) UpdateTask(ctx context.Context, convID, taskID string, update types.PlanUpdate) error {
	if update.State != nil && !update.State.Valid() {
		return types.NewValidationError("unknown plan state %q", *update.State)
	}
	if err := m.plans.UpdateTask(ctx, convID, taskID, update); err != nil {
		return err
	}
	if update.State != nil {
		m.metrics.RecordPlanTransition(string(*update.State))
	}
	return nil
}

// RemovePlans 删除会话计划
func (m *GptsMemory) RemovePlans(ctx context.Context, convID string) error {
	return m.plans.RemoveByConvID(ctx, convID)
}

// Subscribe 订阅会话的新消息，返回的 cancel 必须调用
func (m *GptsMemory) Subscribe(convID string) (<-chan *types.AgentMessage, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan *types.AgentMessage, subscriberBuffer)
	if m.subs[convID] == nil {
		m.subs[convID] = make(map[uint64]chan *types.AgentMessage)
	}
	m.subs[convID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[convID], id)
			if len(m.subs[convID]) == 0 {
				delete(m.subs, convID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (m *GptsMemory) publish(msg *types.AgentMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[msg.ConvID] {
		select {
		case ch <- msg.Clone():
		default:
			m.logger.Warn("subscriber buffer full, message dropped",
				zap.String("conv_id", msg.ConvID),
				zap.String("message_id", msg.MessageID))
		}
	}
}

// forgetIdle 丢弃过期会话的 rounds 缓存，下次追加时从存储重新加载
func (m *GptsMemory) forgetIdle(cutoff time.Time) {
	m.mu.Lock()
	snapshot := make(map[string]*convState, len(m.convs))
	for convID, st := range m.convs {
		snapshot[convID] = st
	}
	m.mu.Unlock()

	// 不能在持有 m.mu 时获取 st.mu：AppendMessage 以相反顺序加锁
	var idle []string
	for convID, st := range snapshot {
		st.mu.Lock()
		if st.lastSeen.Before(cutoff) {
			idle = append(idle, convID)
		}
		st.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, convID := range idle {
		if m.convs[convID] == snapshot[convID] {
			delete(m.convs, convID)
		}
	}
}
