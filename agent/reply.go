package agent

import (
	"context"
	"sync"

	"github.com/BaSui01/agentteam/types"
)

// ReplyHandler 替代默认 GenerateReply 的回复处理器，返回 nil 表示不回复
type ReplyHandler func(ctx context.Context, msg *types.AgentMessage, sender Agent) (*types.AgentMessage, error)

// StaticReply 直接以 content 成功回复，不调用模型
func StaticReply(content string) ReplyHandler {
	return func(_ context.Context, msg *types.AgentMessage, _ Agent) (*types.AgentMessage, error) {
		reply := &types.AgentMessage{
			ConvID:       msg.ConvID,
			Role:         types.MessageRoleAI,
			Content:      content,
			CurrentGoal:  msg.CurrentGoal,
			ActionReport: types.NewSuccessOutput(content),
			Success:      true,
		}
		if msg.Context != nil {
			reply.Context = make(map[string]any, len(msg.Context))
			for k, v := range msg.Context {
				reply.Context[k] = v
			}
		}
		return reply, nil
	}
}

type triggerKind int

const (
	triggerRole triggerKind = iota
	triggerName
	triggerPredicate
	triggerAny
)

// Trigger 决定处理器是否响应某条消息
type Trigger struct {
	kind  triggerKind
	value string
	pred  func(msg *types.AgentMessage, sender Agent) bool
	any   []Trigger
}

// ByRole 发送方 Profile.Role 等于 role
func ByRole(role string) Trigger {
	return Trigger{kind: triggerRole, value: role}
}

// ByName 发送方名字等于 name
func ByName(name string) Trigger {
	return Trigger{kind: triggerName, value: name}
}

// ByPredicate 自定义判断
func ByPredicate(fn func(msg *types.AgentMessage, sender Agent) bool) Trigger {
	return Trigger{kind: triggerPredicate, pred: fn}
}

// AnyOf 任一触发器命中即可
func AnyOf(triggers ...Trigger) Trigger {
	return Trigger{kind: triggerAny, any: append([]Trigger(nil), triggers...)}
}

// Match 判断是否命中
func (t Trigger) Match(msg *types.AgentMessage, sender Agent) bool {
	switch t.kind {
	case triggerRole:
		return sender != nil && sender.Profile().Role == t.value
	case triggerName:
		return sender != nil && sender.Name() == t.value
	case triggerPredicate:
		return t.pred != nil && t.pred(msg, sender)
	case triggerAny:
		for _, sub := range t.any {
			if sub.Match(msg, sender) {
				return true
			}
		}
	}
	return false
}

type replyEntry struct {
	trigger Trigger
	handler ReplyHandler
}

// ReplyRegistry 有序的 (触发器, 处理器) 列表，第一个命中者生效
type ReplyRegistry struct {
	mu      sync.RWMutex
	entries []replyEntry
}

// NewReplyRegistry 创建空列表
func NewReplyRegistry() *ReplyRegistry {
	return &ReplyRegistry{}
}

// Register 追加到末尾
func (r *ReplyRegistry) Register(t Trigger, h ReplyHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, replyEntry{trigger: t, handler: h})
}

// Prepend 插入到最前，优先于已注册的处理器
func (r *ReplyRegistry) Prepend(t Trigger, h ReplyHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]replyEntry{{trigger: t, handler: h}}, r.entries...)
}

// Match 返回第一个命中的处理器
func (r *ReplyRegistry) Match(msg *types.AgentMessage, sender Agent) (ReplyHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.trigger.Match(msg, sender) {
			return e.handler, true
		}
	}
	return nil, false
}

// Len 已注册数量
func (r *ReplyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
