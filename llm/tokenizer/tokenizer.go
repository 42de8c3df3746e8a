package tokenizer

import (
	"strings"
	"sync"

	"github.com/BaSui01/agentteam/types"
)

// Tokenizer 统一的 token 计数接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []types.Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Resolver 按模型名缓存分词器。非 OpenAI 系模型或关闭 tiktoken 时回退到估算器。
type Resolver struct {
	useTiktoken bool

	mu    sync.Mutex
	cache map[string]Tokenizer
}

// NewResolver 创建分词器解析器
func NewResolver(useTiktoken bool) *Resolver {
	return &Resolver{useTiktoken: useTiktoken, cache: make(map[string]Tokenizer)}
}

// For 返回模型对应的分词器
func (r *Resolver) For(model string) Tokenizer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.cache[model]; ok {
		return t
	}
	var t Tokenizer
	if r.useTiktoken && isOpenAIFamily(model) {
		t = NewTiktokenTokenizer(model)
	} else {
		t = NewEstimatorTokenizer(model, 0)
	}
	r.cache[model] = t
	return t
}

// Count 计算消息 token 数，tiktoken 初始化失败（如离线）时退回估算
func (r *Resolver) Count(model string, messages []types.Message) int {
	n, err := r.For(model).CountMessages(messages)
	if err != nil {
		n, _ = NewEstimatorTokenizer(model, 0).CountMessages(messages)
	}
	return n
}

func isOpenAIFamily(model string) bool {
	for prefix := range modelEncodings {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}
