package llm

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/internal/ctxkeys"
	"github.com/BaSui01/agentteam/types"
)

// DefaultPriorityKey 未给智能体单独配置时使用的优先级
const DefaultPriorityKey = "default"

// SelectRequest 一次模型选择
type SelectRequest struct {
	Agent string
	// Roster 会话允许的模型，为空时使用选择器默认名单
	Roster []string
	// Excluded 本轮推理中已经失败的模型
	Excluded []string
}

// ModelSelector 模型选择策略
type ModelSelector struct {
	client   Client
	roster   []string
	priority map[string][]string
	health   *ModelHealth
	logger   *zap.Logger
}

// SelectorOption 选择器选项
type SelectorOption func(*ModelSelector)

// WithRoster 设置默认模型名单
func WithRoster(models ...string) SelectorOption {
	return func(s *ModelSelector) { s.roster = append([]string(nil), models...) }
}

// WithPriority 设置优先级，key 为智能体名或 "default"
func WithPriority(priority map[string][]string) SelectorOption {
	return func(s *ModelSelector) { s.priority = priority }
}

// WithHealth 绑定模型健康状态
func WithHealth(h *ModelHealth) SelectorOption {
	return func(s *ModelSelector) { s.health = h }
}

// WithSelectorLogger 设置日志
func WithSelectorLogger(logger *zap.Logger) SelectorOption {
	return func(s *ModelSelector) { s.logger = logger }
}

// NewModelSelector 创建模型选择器。client 用于名单为空时枚举模型，可为 nil。
func NewModelSelector(client Client, opts ...SelectorOption) *ModelSelector {
	s := &ModelSelector{client: client, priority: map[string][]string{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select 选出本次尝试使用的模型。
// 返回值永远不在 Excluded 中；只有候选集合为空时才返回 ErrNoModelAvailable。
func (s *ModelSelector) Select(ctx context.Context, req SelectRequest) (string, error) {
	roster, err := s.resolveRoster(ctx, req.Roster)
	if err != nil {
		return "", err
	}

	candidates := make([]string, 0, len(roster))
	for _, m := range roster {
		if !slices.Contains(req.Excluded, m) && !slices.Contains(candidates, m) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", types.NewError(types.ErrCodeLLMUnavailable, "select model").WithCause(ErrNoModelAvailable)
	}

	// 请求级覆盖
	if forced, ok := ctxkeys.LLMModel(ctx); ok && slices.Contains(candidates, forced) {
		return forced, nil
	}

	priority, ok := s.priority[req.Agent]
	if !ok || len(priority) == 0 {
		priority = s.priority[DefaultPriorityKey]
	}
	for _, m := range priority {
		if slices.Contains(candidates, m) && s.healthy(m) {
			return m, nil
		}
	}
	for _, m := range candidates {
		if s.healthy(m) {
			return m, nil
		}
	}

	// 全部熔断时仍给出一个候选，由调用结果决定是否继续排除
	s.logger.Warn("all candidate models unhealthy",
		zap.String("agent", req.Agent),
		zap.Strings("candidates", candidates))
	return candidates[0], nil
}

func (s *ModelSelector) resolveRoster(ctx context.Context, override []string) ([]string, error) {
	if len(override) > 0 {
		return override, nil
	}
	if len(s.roster) > 0 {
		return s.roster, nil
	}
	if s.client == nil {
		return nil, nil
	}
	infos, err := s.client.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]string, 0, len(infos))
	for _, info := range infos {
		models = append(models, info.Model)
	}
	return models, nil
}

func (s *ModelSelector) healthy(model string) bool {
	if s.health == nil {
		return true
	}
	return s.health.Healthy(model)
}
