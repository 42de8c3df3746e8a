// MockAction 与 MockTool 的动作/资源测试模拟实现。
//
// 支持脚本化输出、panic 注入与调用记录。
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/agentteam/agent/action"
	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/types"
)

// ActionCall 记录单次动作执行
type ActionCall struct {
	AIMessage string
	Resource  resource.Resource
	RelyOut   *types.ActionOutput
	Options   action.RunOptions
}

// MockAction 是 action.Action 的模拟实现。
// 输出队列用尽后重复最后一个输出；没有配置输出时回显 LLM 文本。
type MockAction struct {
	mu sync.Mutex

	name    string
	need    resource.Type
	schema  []byte
	outputs []*types.ActionOutput
	panicV  any
	runFunc func(ctx context.Context, aiMessage string, res resource.Resource, relyOut *types.ActionOutput) *types.ActionOutput

	calls []ActionCall
}

var _ action.Action = (*MockAction)(nil)

// NewMockAction 创建动作
func NewMockAction(name string) *MockAction {
	return &MockAction{name: name}
}

// WithResourceNeed 设置需要的资源类型
func (m *MockAction) WithResourceNeed(t resource.Type) *MockAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.need = t
	return m
}

// WithSchema 设置输入 schema
func (m *MockAction) WithSchema(schema []byte) *MockAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema = schema
	return m
}

// WithOutputs 按顺序返回的输出
func (m *MockAction) WithOutputs(outputs ...*types.ActionOutput) *MockAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, outputs...)
	return m
}

// WithPanic 执行时 panic
func (m *MockAction) WithPanic(v any) *MockAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicV = v
	return m
}

// WithRunFunc 自定义执行逻辑
func (m *MockAction) WithRunFunc(fn func(ctx context.Context, aiMessage string, res resource.Resource, relyOut *types.ActionOutput) *types.ActionOutput) *MockAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runFunc = fn
	return m
}

// Name implements action.Action.
func (m *MockAction) Name() string { return m.name }

// ResourceNeed implements action.Action.
func (m *MockAction) ResourceNeed() resource.Type { return m.need }

// InputSchema implements action.Action.
func (m *MockAction) InputSchema() []byte { return m.schema }

// Run implements action.Action.
func (m *MockAction) Run(ctx context.Context, aiMessage string, res resource.Resource, relyOut *types.ActionOutput, opts action.RunOptions) *types.ActionOutput {
	m.mu.Lock()
	m.calls = append(m.calls, ActionCall{AIMessage: aiMessage, Resource: res, RelyOut: relyOut, Options: opts})
	panicV := m.panicV
	fn := m.runFunc
	var out *types.ActionOutput
	switch {
	case len(m.outputs) > 1:
		out = m.outputs[0]
		m.outputs = m.outputs[1:]
	case len(m.outputs) == 1:
		out = m.outputs[0]
	}
	m.mu.Unlock()

	if panicV != nil {
		panic(panicV)
	}
	if fn != nil {
		return fn(ctx, aiMessage, res, relyOut)
	}
	if out != nil {
		return out.Clone()
	}
	return types.NewSuccessOutput(aiMessage)
}

// Calls 返回调用记录副本
func (m *MockAction) Calls() []ActionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActionCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockAction) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ToolCall 记录单次工具调用
type ToolCall struct {
	Args   map[string]any
	Result any
	Error  error
}

// MockTool 可执行的工具资源
type MockTool struct {
	mu sync.Mutex

	name   string
	prompt string
	result any
	err    error
	calls  []ToolCall
}

var (
	_ resource.Resource = (*MockTool)(nil)
	_ resource.Executor = (*MockTool)(nil)
)

// NewMockTool 创建工具
func NewMockTool(name string) *MockTool {
	return &MockTool{name: name, prompt: fmt.Sprintf("- %s: mock tool", name)}
}

// WithPrompt 设置提示词
func (m *MockTool) WithPrompt(prompt string) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt = prompt
	return m
}

// WithResult 设置执行结果
func (m *MockTool) WithResult(result any) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	return m
}

// WithError 设置执行错误
func (m *MockTool) WithError(err error) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Name implements resource.Resource.
func (m *MockTool) Name() string { return m.name }

// Type implements resource.Resource.
func (m *MockTool) Type() resource.Type { return resource.TypeTool }

// Prompt implements resource.Resource.
func (m *MockTool) Prompt(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompt, nil
}

// Execute implements resource.Executor.
func (m *MockTool) Execute(_ context.Context, args map[string]any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ToolCall{Args: args, Result: m.result, Error: m.err})
	return m.result, m.err
}

// Calls 返回调用记录副本
func (m *MockTool) Calls() []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolCall(nil), m.calls...)
}
