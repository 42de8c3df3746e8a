package types

import (
	"strings"
	"time"
)

// MessageRole 会话消息角色
type MessageRole string

const (
	MessageRoleHuman  MessageRole = "human"
	MessageRoleAI     MessageRole = "ai"
	MessageRoleSystem MessageRole = "system"
	MessageRoleView   MessageRole = "view"
)

// ReviewInfo 审查结果
type ReviewInfo struct {
	Approve  bool   `json:"approve"`
	Comments string `json:"comments,omitempty"`
}

// AgentMessage 智能体之间交换的一轮消息。
// Sender/Receiver 为角色名，通过名字解析，不持有对象引用。
type AgentMessage struct {
	MessageID     string         `json:"message_id"`
	ConvID        string         `json:"conv_id"`
	Sender        string         `json:"sender"`
	Receiver      string         `json:"receiver"`
	Role          MessageRole    `json:"role"`
	Content       string         `json:"content"`
	CurrentGoal   string         `json:"current_goal,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	ReviewInfo    *ReviewInfo    `json:"review_info,omitempty"`
	ActionReport  *ActionOutput  `json:"action_report,omitempty"`
	ModelName     string         `json:"model_name,omitempty"`
	Rounds        int            `json:"rounds"`
	Success       bool           `json:"success"`
	IsTermination bool           `json:"is_termination"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HasPayload 消息是否带有内容或动作结果
func (m *AgentMessage) HasPayload() bool {
	if m == nil {
		return false
	}
	return strings.TrimSpace(m.Content) != "" || m.ActionReport != nil
}

// ReportContent 优先返回动作结果内容，没有时返回原始内容
func (m *AgentMessage) ReportContent() string {
	if m.ActionReport != nil && m.ActionReport.Content != "" {
		return m.ActionReport.Content
	}
	return m.Content
}

// Clone 深拷贝消息，持久化后的消息不允许被调用方修改
func (m *AgentMessage) Clone() *AgentMessage {
	if m == nil {
		return nil
	}
	c := *m
	if m.Context != nil {
		c.Context = make(map[string]any, len(m.Context))
		for k, v := range m.Context {
			c.Context[k] = v
		}
	}
	if m.ReviewInfo != nil {
		ri := *m.ReviewInfo
		c.ReviewInfo = &ri
	}
	c.ActionReport = m.ActionReport.Clone()
	return &c
}
