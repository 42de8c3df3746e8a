package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// UserProxyName 用户代理的默认名字
const UserProxyName = "User"

// UserProxyAgent 代表人类发起会话，只记录收到的消息，从不回复
type UserProxyAgent struct {
	name   string
	memory *memory.GptsMemory
	convID string
	logger *zap.Logger
}

var _ Agent = (*UserProxyAgent)(nil)

// NewUserProxyAgent 创建用户代理
func NewUserProxyAgent(convID string, mem *memory.GptsMemory, logger *zap.Logger) (*UserProxyAgent, error) {
	if mem == nil {
		return nil, ErrNoMemory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserProxyAgent{
		name:   UserProxyName,
		memory: mem,
		convID: convID,
		logger: logger.With(zap.String("agent", UserProxyName)),
	}, nil
}

// Name implements Agent.
func (u *UserProxyAgent) Name() string { return u.name }

// Profile implements Agent.
func (u *UserProxyAgent) Profile() Profile {
	return Profile{Name: u.name, Role: "Human", Desc: "the human user who starts the conversation"}
}

// InitiateChat 以 content 作为目标向 recipient 发起会话，返回会话的最后一条消息
func (u *UserProxyAgent) InitiateChat(ctx context.Context, recipient Agent, content string, reviewer Reviewer) (*types.AgentMessage, error) {
	return u.Initiate(ctx, recipient, &types.AgentMessage{Content: content}, reviewer)
}

// Initiate 同 InitiateChat，msg 可以携带 Context；CurrentGoal 为空时取 Content
func (u *UserProxyAgent) Initiate(ctx context.Context, recipient Agent, msg *types.AgentMessage, reviewer Reviewer) (*types.AgentMessage, error) {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, types.NewValidationError("user message must not be empty")
	}
	out := msg.Clone()
	out.ConvID = u.convID
	out.Role = types.MessageRoleHuman
	if out.CurrentGoal == "" {
		out.CurrentGoal = out.Content
	}
	u.logger.Info("initiate chat",
		zap.String("conv_id", u.convID),
		zap.String("recipient", recipient.Name()))

	if _, err := u.Send(ctx, out, recipient, SendOptions{RequestReply: true, Reviewer: reviewer}); err != nil {
		return nil, err
	}
	return u.memory.LastMessage(ctx, u.convID)
}

// Send implements Agent.
func (u *UserProxyAgent) Send(ctx context.Context, msg *types.AgentMessage, recipient Agent, opts SendOptions) (*types.AgentMessage, error) {
	if recipient == nil {
		return nil, fmt.Errorf("%w: recipient is nil", ErrInvalidConfig)
	}
	if msg == nil {
		return nil, types.NewValidationError("user proxy: message is nil")
	}
	out := msg.Clone()
	out.Sender = u.name
	out.Receiver = recipient.Name()
	if out.ConvID == "" {
		out.ConvID = u.convID
	}
	if out.Role == "" {
		out.Role = types.MessageRoleHuman
	}
	return recipient.Receive(ctx, out, u, opts)
}

// Receive implements Agent.
func (u *UserProxyAgent) Receive(ctx context.Context, msg *types.AgentMessage, _ Agent, _ SendOptions) (*types.AgentMessage, error) {
	return u.memory.AppendMessage(ctx, msg)
}

// GenerateReply implements Agent. 用户代理不生成回复。
func (u *UserProxyAgent) GenerateReply(context.Context, *types.AgentMessage, Agent, Reviewer, []*types.AgentMessage) (*types.AgentMessage, error) {
	return nil, nil
}
