// Package action 定义智能体动作契约。
//
// 动作接收 LLM 输出文本，按输入 schema 校验后执行，结果统一为 *types.ActionOutput。
// 解析失败、执行错误乃至 panic 都转换成 IsExeSuccess=false 的结果，不会越过动作边界。
package action

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/types"
)

// RunOptions 动作执行时可见的会话信息
type RunOptions struct {
	ConvID       string
	Sender       string
	CurrentGoal  string
	AgentContext types.AgentContext
	Context      map[string]any
}

// Action 动作契约
type Action interface {
	Name() string
	// ResourceNeed 需要的资源类型，空表示不需要
	ResourceNeed() resource.Type
	// InputSchema LLM 输出需满足的 JSON Schema，nil 表示自由文本
	InputSchema() []byte
	// Run 执行动作。relyOut 为动作链中上一个动作的输出。
	Run(ctx context.Context, aiMessage string, res resource.Resource, relyOut *types.ActionOutput, opts RunOptions) *types.ActionOutput
}

// SafeRun 执行动作并把 panic 与空结果转换为失败输出
func SafeRun(ctx context.Context, a Action, aiMessage string, res resource.Resource, relyOut *types.ActionOutput, opts RunOptions) (out *types.ActionOutput) {
	defer func() {
		if r := recover(); r != nil {
			out = types.NewFailedOutput(fmt.Sprintf("action %s raised an exception: %v", a.Name(), r))
		}
	}()
	out = a.Run(ctx, aiMessage, res, relyOut, opts)
	if out == nil {
		out = types.NewFailedOutput(fmt.Sprintf("action %s returned no output", a.Name()))
	}
	return out
}

// BlankAction 直接把 LLM 输出作为结果
type BlankAction struct{}

func (BlankAction) Name() string                { return "blank" }
func (BlankAction) ResourceNeed() resource.Type { return "" }
func (BlankAction) InputSchema() []byte         { return nil }

func (BlankAction) Run(_ context.Context, aiMessage string, _ resource.Resource, _ *types.ActionOutput, _ RunOptions) *types.ActionOutput {
	return types.NewSuccessOutput(aiMessage)
}
