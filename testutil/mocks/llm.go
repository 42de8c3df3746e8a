// MockLLM 模型客户端的测试模拟实现。
//
// 支持按智能体分配的脚本、顺序队列、按模型注入错误与延迟。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/types"
)

// ErrScriptExhausted 脚本和队列都已用尽
var ErrScriptExhausted = errors.New("mock llm: no scripted response left")

// MockLLM 是 llm.Client 的模拟实现
type MockLLM struct {
	mu sync.Mutex

	queue        []string
	scripts      map[string][]string
	responseFunc func(ctx context.Context, req *llm.CompletionRequest) (string, error)
	err          error
	modelErrs    map[string]error
	models       []string
	delay        time.Duration

	calls []MockLLMCall
}

// MockLLMCall 记录单次调用
type MockLLMCall struct {
	Agent   string
	Model   string
	Request *llm.CompletionRequest
	Output  string
	Error   error
}

var _ llm.Client = (*MockLLM)(nil)

// NewMockLLM 创建 MockLLM，默认提供一个模型 mock-model
func NewMockLLM() *MockLLM {
	return &MockLLM{
		scripts:   make(map[string][]string),
		modelErrs: make(map[string]error),
		models:    []string{"mock-model"},
	}
}

// WithResponses 追加到共享队列，脚本未命中时按顺序取用
func (m *MockLLM) WithResponses(responses ...string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
	return m
}

// WithAgentScript 为指定智能体（按请求上下文中的 agent）追加响应
func (m *MockLLM) WithAgentScript(agent string, responses ...string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[agent] = append(m.scripts[agent], responses...)
	return m
}

// WithResponseFunc 设置自定义响应函数，优先级最高
func (m *MockLLM) WithResponseFunc(fn func(ctx context.Context, req *llm.CompletionRequest) (string, error)) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFunc = fn
	return m
}

// WithError 所有调用返回该错误
func (m *MockLLM) WithError(err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithModelError 指定模型的调用返回该错误
func (m *MockLLM) WithModelError(model string, err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelErrs[model] = err
	return m
}

// WithModels 设置 Models 返回的模型列表
func (m *MockLLM) WithModels(models ...string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = append([]string(nil), models...)
	return m
}

// WithDelay 设置响应延迟
func (m *MockLLM) WithDelay(d time.Duration) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Create implements llm.Client.
func (m *MockLLM) Create(ctx context.Context, req *llm.CompletionRequest) (string, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	agent, _ := req.Context["agent"].(string)
	out, err := m.next(ctx, agent, req)

	m.mu.Lock()
	m.calls = append(m.calls, MockLLMCall{Agent: agent, Model: req.Model, Request: req, Output: out, Error: err})
	m.mu.Unlock()
	return out, err
}

func (m *MockLLM) next(ctx context.Context, agent string, req *llm.CompletionRequest) (string, error) {
	m.mu.Lock()
	fn := m.responseFunc
	if fn == nil {
		defer m.mu.Unlock()
	} else {
		m.mu.Unlock()
		return fn(ctx, req)
	}

	if err, ok := m.modelErrs[req.Model]; ok {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if script := m.scripts[agent]; len(script) > 0 {
		m.scripts[agent] = script[1:]
		return script[0], nil
	}
	if len(m.queue) > 0 {
		out := m.queue[0]
		m.queue = m.queue[1:]
		return out, nil
	}
	return "", ErrScriptExhausted
}

// Models implements llm.Client.
func (m *MockLLM) Models(context.Context) ([]types.ModelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ModelInfo, 0, len(m.models))
	for _, name := range m.models {
		out = append(out, types.ModelInfo{Model: name, Provider: "mock", Healthy: true})
	}
	return out, nil
}

// Calls 返回调用记录副本
func (m *MockLLM) Calls() []MockLLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockLLMCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor 返回指定智能体的调用
func (m *MockLLM) CallsFor(agent string) []MockLLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockLLMCall
	for _, c := range m.calls {
		if c.Agent == agent {
			out = append(out, c)
		}
	}
	return out
}

// LastCall 返回最后一次调用
func (m *MockLLM) LastCall() *MockLLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset 清空调用记录
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
