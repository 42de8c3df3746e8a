// Package vis 把计划、消息等结构渲染成带标签的代码块，供前端渲染。
// 核心流程只转发 Display 的结果，不解析其内容。
package vis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/agentteam/types"
)

// 渲染标签
const (
	TagPlans    = "agent-plans"
	TagMessages = "agent-messages"
	TagText     = "agent-text"
)

// Vis 渲染协议
type Vis interface {
	Tag() string
	Display(ctx context.Context, content any) (string, error)
}

// Fence 输出 ```tag\n<json>\n```
func Fence(tag string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("vis %s: %w", tag, err)
	}
	return fmt.Sprintf("```%s\n%s\n```", tag, data), nil
}

// PlanItem 计划渲染项
type PlanItem struct {
	Name   string `json:"name"`
	Num    int    `json:"num"`
	Status string `json:"status"`
	Agent  string `json:"agent"`
	Rely   string `json:"rely,omitempty"`
	Result string `json:"markdown,omitempty"`
}

// PlanVis 渲染计划列表
type PlanVis struct{}

func (PlanVis) Tag() string { return TagPlans }

// Display 接受 []*types.GptsPlan
func (v PlanVis) Display(_ context.Context, content any) (string, error) {
	plans, ok := content.([]*types.GptsPlan)
	if !ok {
		return "", fmt.Errorf("vis %s: unexpected content %T", v.Tag(), content)
	}
	items := make([]PlanItem, 0, len(plans))
	for _, p := range plans {
		name := p.SubTaskTitle
		if name == "" {
			name = p.SubTaskContent
		}
		items = append(items, PlanItem{
			Name:   name,
			Num:    p.SubTaskNum,
			Status: string(p.State),
			Agent:  p.SubTaskAgent,
			Rely:   p.Rely,
			Result: p.Result,
		})
	}
	return Fence(v.Tag(), items)
}

// MessageItem 消息渲染项
type MessageItem struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Model    string `json:"model,omitempty"`
	Rounds   int    `json:"rounds"`
	Markdown string `json:"markdown"`
}

// MessageVis 渲染消息列表
type MessageVis struct{}

func (MessageVis) Tag() string { return TagMessages }

// Display 接受 []*types.AgentMessage，优先展示 action report 的 view
func (v MessageVis) Display(_ context.Context, content any) (string, error) {
	msgs, ok := content.([]*types.AgentMessage)
	if !ok {
		return "", fmt.Errorf("vis %s: unexpected content %T", v.Tag(), content)
	}
	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		md := m.Content
		if m.ActionReport != nil {
			if m.ActionReport.View != "" {
				md = m.ActionReport.View
			} else if m.ActionReport.Content != "" {
				md = m.ActionReport.Content
			}
		}
		items = append(items, MessageItem{
			Sender:   m.Sender,
			Receiver: m.Receiver,
			Model:    m.ModelName,
			Rounds:   m.Rounds,
			Markdown: md,
		})
	}
	return Fence(v.Tag(), items)
}

// TextVis 纯文本
type TextVis struct{}

func (TextVis) Tag() string { return TagText }

func (v TextVis) Display(_ context.Context, content any) (string, error) {
	return Fence(v.Tag(), map[string]any{"text": fmt.Sprint(content)})
}
