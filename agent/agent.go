package agent

import (
	"context"
	"strings"

	"github.com/BaSui01/agentteam/types"
)

// TerminateMarker 消息内容包含该标记时不再生成回复
const TerminateMarker = "TERMINATE"

// Profile 智能体的身份描述，进入系统提示词
type Profile struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Goal        string   `json:"goal,omitempty"`
	Desc        string   `json:"desc,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// Describe 用于团队名单的一行描述
func (p Profile) Describe() string {
	desc := p.Desc
	if desc == "" {
		desc = p.Goal
	}
	if desc == "" {
		return p.Name
	}
	return p.Name + ": " + desc
}

// SendOptions 一次消息投递的选项
type SendOptions struct {
	// RequestReply 为 false 时接收方只持久化消息
	RequestReply bool
	// Reviewer 为 nil 时使用 DefaultReviewer
	Reviewer Reviewer
	// RelyMessages 前置任务的输入与结果，按顺序进入上下文窗口
	RelyMessages []*types.AgentMessage
}

// Agent 会话参与者。智能体之间只通过名字互相引用消息，
// Send/Receive 的 Agent 参数仅在本次投递中使用。
type Agent interface {
	Name() string
	Profile() Profile

	// Send 把消息投递给 recipient，返回本次交换的最后一条已持久化消息：
	// 请求了回复时为 recipient 的回复，否则为投递的消息本身。
	Send(ctx context.Context, msg *types.AgentMessage, recipient Agent, opts SendOptions) (*types.AgentMessage, error)

	// Receive 持久化消息，并在需要时生成回复发回 sender。返回值同 Send。
	// sender 为 nil 时只持久化。
	Receive(ctx context.Context, msg *types.AgentMessage, sender Agent, opts SendOptions) (*types.AgentMessage, error)

	// GenerateReply 执行 think → review → act → verify，失败时自我纠错重试。
	GenerateReply(ctx context.Context, received *types.AgentMessage, sender Agent, reviewer Reviewer, rely []*types.AgentMessage) (*types.AgentMessage, error)
}

// Reviewer 审查模型输出
type Reviewer interface {
	Review(ctx context.Context, content string, agent Agent) (approve bool, comments string)
}

// ReviewerFunc 函数适配器
type ReviewerFunc func(ctx context.Context, content string, agent Agent) (bool, string)

// Review implements Reviewer.
func (f ReviewerFunc) Review(ctx context.Context, content string, agent Agent) (bool, string) {
	return f(ctx, content, agent)
}

// DefaultReviewer 总是通过
var DefaultReviewer Reviewer = ReviewerFunc(func(context.Context, string, Agent) (bool, string) {
	return true, ""
})

// IsTerminate 内容是否包含终止标记
func IsTerminate(content string) bool {
	return strings.Contains(content, TerminateMarker)
}
