package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// TypeAssistant 内置的通用工作智能体类型
const TypeAssistant = "assistant"

// Factory 根据配置创建智能体
type Factory func(cfg Config, deps Deps) (Agent, error)

type registration struct {
	desc    string
	factory Factory
}

// Registry 智能体类型注册表，团队配置通过类型名实例化成员
type Registry struct {
	mu        sync.RWMutex
	factories map[string]registration
	logger    *zap.Logger
}

// NewRegistry 创建注册表并注册内置类型
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		factories: make(map[string]registration),
		logger:    logger,
	}
	r.Register(TypeAssistant, "general purpose worker that answers with the model output", func(cfg Config, deps Deps) (Agent, error) {
		return NewConversableAgent(cfg, deps)
	})
	return r
}

// Register 注册类型，同名覆盖
func (r *Registry) Register(typ, desc string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[typ] = registration{desc: desc, factory: factory}
	r.logger.Debug("agent type registered", zap.String("type", typ))
}

// Unregister 移除类型
func (r *Registry) Unregister(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.factories, typ)
	r.logger.Debug("agent type unregistered", zap.String("type", typ))
}

// Create 实例化指定类型的智能体
func (r *Registry) Create(typ string, cfg Config, deps Deps) (Agent, error) {
	r.mu.RLock()
	reg, exists := r.factories[typ]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrAgentTypeNotRegistered, typ)
	}

	a, err := reg.factory(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent of type %q: %w", typ, err)
	}

	r.logger.Info("agent created",
		zap.String("type", typ),
		zap.String("name", cfg.Profile.Name),
	)
	return a, nil
}

// IsRegistered 类型是否已注册
func (r *Registry) IsRegistered(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[typ]
	return exists
}

// ListTypes 返回已注册类型，按名字排序
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Describe 返回类型描述
func (r *Registry) Describe(typ string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.factories[typ]
	return reg.desc, ok
}
