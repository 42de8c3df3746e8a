package agent

import "errors"

var (
	// ErrNoLLMClient 需要调用模型但没有配置客户端
	ErrNoLLMClient = errors.New("llm client not set")

	// ErrNoMemory 智能体没有绑定 GptsMemory
	ErrNoMemory = errors.New("gpts memory not set")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid agent config")

	// ErrAgentTypeNotRegistered Registry 中没有该类型
	ErrAgentTypeNotRegistered = errors.New("agent type not registered")
)
