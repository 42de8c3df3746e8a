package llm

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/types"
)

// HealthConfig 逐模型熔断配置
type HealthConfig struct {
	// MaxFailures 连续失败多少次后熔断
	MaxFailures uint32 `yaml:"max_failures" json:"max_failures"`
	// OpenTimeout 熔断持续时间，之后进入半开状态
	OpenTimeout time.Duration `yaml:"open_timeout" json:"open_timeout"`
	// Interval 闭合状态下清零计数的周期，0 表示不清零
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// DefaultHealthConfig 默认熔断配置
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{MaxFailures: 3, OpenTimeout: 30 * time.Second, Interval: time.Minute}
}

// ModelHealth 维护每个模型的熔断器
type ModelHealth struct {
	cfg    HealthConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewModelHealth 创建模型健康跟踪器
func NewModelHealth(cfg HealthConfig, logger *zap.Logger) *ModelHealth {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultHealthConfig()
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &ModelHealth{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "model_health")),
		breakers: make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

func (h *ModelHealth) breaker(model string) *gobreaker.CircuitBreaker[string] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[model]; ok {
		return cb
	}
	maxFailures := h.cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "model:" + model,
		MaxRequests: 1,
		Interval:    h.cfg.Interval,
		Timeout:     h.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn("model breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// 请求本身不合法不算模型故障
		IsSuccessful: func(err error) bool {
			return err == nil || !types.IsRetryable(err)
		},
	})
	h.breakers[model] = cb
	return cb
}

// Execute 通过模型的熔断器执行调用
func (h *ModelHealth) Execute(model string, fn func() (string, error)) (string, error) {
	out, err := h.breaker(model).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", NewRetryableError(types.ErrCodeLLMUnavailable, "model "+model+" circuit open", err).WithModel(model)
	}
	return out, err
}

// Healthy 熔断器未打开即视为健康
func (h *ModelHealth) Healthy(model string) bool {
	h.mu.Lock()
	cb, ok := h.breakers[model]
	h.mu.Unlock()
	if !ok {
		return true
	}
	return cb.State() != gobreaker.StateOpen
}

// Snapshot 返回各模型健康状态
func (h *ModelHealth) Snapshot() []types.ModelInfo {
	h.mu.Lock()
	names := make([]string, 0, len(h.breakers))
	for name := range h.breakers {
		names = append(names, name)
	}
	h.mu.Unlock()

	infos := make([]types.ModelInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, types.ModelInfo{Model: name, Healthy: h.Healthy(name)})
	}
	return infos
}
