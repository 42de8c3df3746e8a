package llm

import (
	"context"

	"github.com/BaSui01/agentteam/types"
)

// CompletionRequest 一次补全请求
type CompletionRequest struct {
	Messages     []types.Message `json:"messages"`
	Model        string          `json:"model"`
	MaxNewTokens int             `json:"max_new_tokens,omitempty"`
	Temperature  float64         `json:"temperature"`
	// Context 透传给模型服务的附加信息（conv_id、agent 等）
	Context map[string]any `json:"context,omitempty"`
}

// Client 模型客户端
type Client interface {
	// Create 发起补全请求，返回模型输出文本。
	// 传输错误、限流、5xx 返回 Retryable=true 的 *types.Error。
	Create(ctx context.Context, req *CompletionRequest) (string, error)

	// Models 列出可用模型
	Models(ctx context.Context) ([]types.ModelInfo, error)
}
