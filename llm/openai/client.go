// Package openai 实现 OpenAI 兼容协议（/chat/completions、/models）的 llm.Client。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/internal/ctxkeys"
	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/types"
)

// Config 客户端配置
type Config struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Models 服务端不支持 /models 时使用的静态列表
	Models []string `yaml:"models" json:"models"`
}

// Client OpenAI 兼容客户端
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New 创建客户端
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "openai_client")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	User        string        `json:"user,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Create implements llm.Client.
func (c *Client) Create(ctx context.Context, req *llm.CompletionRequest) (string, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxNewTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if convID, ok := req.Context["conv_id"].(string); ok {
		body.User = convID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", types.NewError(types.ErrCodeValidation, "encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrCodeValidation, "build request").WithCause(err)
	}
	c.buildHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", llm.NewRetryableError(types.ErrCodeUpstream, "chat completion transport", err).WithModel(req.Model)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", llm.ErrorFromStatus(resp.StatusCode, readErrMsg(resp.Body)).WithModel(req.Model)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", llm.NewRetryableError(types.ErrCodeUpstream, "decode chat completion", err).WithModel(req.Model)
	}
	if len(out.Choices) == 0 {
		return "", llm.NewRetryableError(types.ErrCodeUpstream, "empty choices", nil).WithModel(req.Model)
	}
	return out.Choices[0].Message.Content, nil
}

// Models implements llm.Client.
func (c *Client) Models(ctx context.Context) ([]types.ModelInfo, error) {
	if len(c.cfg.Models) > 0 {
		infos := make([]types.ModelInfo, 0, len(c.cfg.Models))
		for _, m := range c.cfg.Models {
			infos = append(infos, types.ModelInfo{Model: m, Provider: "openai", Healthy: true})
		}
		return infos, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("models"), nil)
	if err != nil {
		return nil, err
	}
	c.buildHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewRetryableError(types.ErrCodeUpstream, "list models transport", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, llm.ErrorFromStatus(resp.StatusCode, readErrMsg(resp.Body))
	}

	var out modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	infos := make([]types.ModelInfo, 0, len(out.Data))
	for _, d := range out.Data {
		infos = append(infos, types.ModelInfo{Model: d.ID, Provider: d.OwnedBy, Healthy: true})
	}
	return infos, nil
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), path)
}

func (c *Client) buildHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if id, ok := ctxkeys.RequestID(req.Context()); ok {
		req.Header.Set("X-Request-ID", id)
	}
}

func readErrMsg(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return strings.TrimSpace(string(data))
}
