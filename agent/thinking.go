package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/llm/tokenizer"
	"github.com/BaSui01/agentteam/types"
)

// 历史窗口保留最早与最近的消息条数
const (
	historyHead = 2
	historyTail = 3
)

// SystemPrompt 返回系统提示词，可由 Hooks.SystemPrompt 覆盖
func (a *ConversableAgent) SystemPrompt(ctx context.Context) (string, error) {
	if a.hooks.SystemPrompt != nil {
		return a.hooks.SystemPrompt(ctx)
	}
	return BuildSystemPrompt(ctx, a.profile, a.resources, a.deps.AgentContext.Language)
}

// BuildSystemPrompt 由身份描述、资源提示和输出语言拼出系统提示词
func BuildSystemPrompt(ctx context.Context, p Profile, resources []resource.Resource, language string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s, named %s.", p.Role, p.Name)
	if p.Goal != "" {
		fmt.Fprintf(&b, " Your goal is: %s", p.Goal)
	}
	if p.Desc != "" {
		fmt.Fprintf(&b, "\n%s", p.Desc)
	}
	if len(p.Constraints) > 0 {
		b.WriteString("\n\nPlease follow these constraints:")
		for i, c := range p.Constraints {
			fmt.Fprintf(&b, "\n%d. %s", i+1, c)
		}
	}

	var prompts []string
	for _, r := range resources {
		if r == nil {
			continue
		}
		text, err := r.Prompt(ctx)
		if err != nil {
			return "", fmt.Errorf("resource %s prompt: %w", r.Name(), err)
		}
		if strings.TrimSpace(text) != "" {
			prompts = append(prompts, text)
		}
	}
	if len(prompts) > 0 {
		b.WriteString("\n\nYou can use the following resources:\n")
		b.WriteString(strings.Join(prompts, "\n"))
	}

	if language != "" {
		fmt.Fprintf(&b, "\n\nPlease answer in %s.", languageName(language))
	}
	return b.String(), nil
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "en":
		return "English"
	case "zh":
		return "Chinese"
	default:
		return code
	}
}

// Window 上下文窗口的三段。Head 为系统提示与依赖消息，Tail 为当前消息及之后的重试反馈，
// 两者始终保留；超出预算时只裁剪 History。
type Window struct {
	Head    []types.Message
	History []types.Message
	Tail    []types.Message
}

// Messages 按 Head、History、Tail 顺序拼接
func (w Window) Messages() []types.Message {
	out := make([]types.Message, 0, len(w.Head)+len(w.History)+len(w.Tail))
	out = append(out, w.Head...)
	out = append(out, w.History...)
	return append(out, w.Tail...)
}

// windowOf 把自定义钩子返回的消息切分为窗口：开头的系统消息为 Head，最后一条为 Tail
func windowOf(msgs []types.Message) Window {
	if len(msgs) == 0 {
		return Window{}
	}
	head := 0
	for head < len(msgs)-1 && msgs[head].Role == types.RoleSystem {
		head++
	}
	return Window{
		Head:    msgs[:head],
		History: msgs[head : len(msgs)-1],
		Tail:    msgs[len(msgs)-1:],
	}
}

func (a *ConversableAgent) loadWindow(ctx context.Context, in ThinkingInput) (Window, error) {
	if a.hooks.LoadThinkingMessages != nil {
		msgs, err := a.hooks.LoadThinkingMessages(ctx, in)
		if err != nil {
			return Window{}, err
		}
		return windowOf(msgs), nil
	}
	return a.DefaultWindow(ctx, in)
}

// DefaultThinkingMessages 返回 DefaultWindow 拼接后的消息
func (a *ConversableAgent) DefaultThinkingMessages(ctx context.Context, in ThinkingInput) ([]types.Message, error) {
	w, err := a.DefaultWindow(ctx, in)
	if err != nil {
		return nil, err
	}
	return w.Messages(), nil
}

// DefaultWindow 构造上下文窗口：
// 系统提示 → 依赖消息 → 与发送方的历史（首 2 条与末 3 条）→ 当前消息 → 重试时的上次输出与失败原因
func (a *ConversableAgent) DefaultWindow(ctx context.Context, in ThinkingInput) (Window, error) {
	system, err := a.SystemPrompt(ctx)
	if err != nil {
		return Window{}, err
	}

	w := Window{Head: []types.Message{types.NewSystemMessage(system)}}
	for _, m := range in.Rely {
		w.Head = append(w.Head, relyMessage(m))
	}

	if received := in.Received; received != nil {
		peer := received.Sender
		if in.Sender != nil {
			peer = in.Sender.Name()
		}
		history, err := a.deps.Memory.MessagesBetween(ctx, received.ConvID, a.Name(), peer, received.CurrentGoal)
		if err != nil {
			return Window{}, err
		}
		inTail := false
		for _, m := range windowHistory(history) {
			if m.MessageID != "" && m.MessageID == received.MessageID {
				inTail = true
			}
			if inTail {
				w.Tail = append(w.Tail, a.toLLMMessage(m))
			} else {
				w.History = append(w.History, a.toLLMMessage(m))
			}
		}
		if !inTail {
			w.Tail = append(w.Tail, a.toLLMMessage(received))
		}
	}

	if in.FailReason != "" {
		w.Tail = append(w.Tail,
			types.NewAssistantMessage(in.PreviousOutput),
			types.NewUserMessage(in.FailReason))
	}
	return w, nil
}

func (a *ConversableAgent) toLLMMessage(m *types.AgentMessage) types.Message {
	if m.Sender == a.Name() {
		return types.NewAssistantMessage(m.Content)
	}
	return types.NewUserMessage(m.ReportContent())
}

// relyMessage 前置任务的输入为用户轮，结果为助手轮
func relyMessage(m *types.AgentMessage) types.Message {
	if m.Role == types.MessageRoleHuman {
		return types.NewUserMessage(m.Content)
	}
	return types.NewAssistantMessage(m.ReportContent())
}

// windowHistory 保留首 historyHead 条和末 historyTail 条，按消息 ID 去重
func windowHistory(history []*types.AgentMessage) []*types.AgentMessage {
	if len(history) <= historyHead+historyTail {
		return history
	}
	out := make([]*types.AgentMessage, 0, historyHead+historyTail)
	seen := make(map[string]struct{}, historyHead+historyTail)
	add := func(m *types.AgentMessage) {
		if m.MessageID != "" {
			if _, ok := seen[m.MessageID]; ok {
				return
			}
			seen[m.MessageID] = struct{}{}
		}
		out = append(out, m)
	}
	for _, m := range history[:historyHead] {
		add(m)
	}
	for _, m := range history[len(history)-historyTail:] {
		add(m)
	}
	return out
}

// fitWindow 超出 token 预算时按整轮丢弃最早的历史
func (a *ConversableAgent) fitWindow(model string, w Window) []types.Message {
	if a.deps.Tokenizer == nil {
		return w.Messages()
	}
	return FitWindow(a.deps.Tokenizer, model, w, a.deps.AgentContext.MaxNewTokens)
}

// FitWindow 按模型上下文长度减去输出预留裁剪 History。
// 一次丢弃一整轮（一条用户消息及紧随的助手回复），Head 与 Tail 不动，
// 历史清空后仍超预算时原样返回剩余部分。
func FitWindow(r *tokenizer.Resolver, model string, w Window, reserve int) []types.Message {
	budget := r.For(model).MaxTokens() - reserve
	if budget <= 0 {
		budget = r.For(model).MaxTokens() / 2
	}
	history := w.History
	for len(history) > 0 && r.Count(model, Window{Head: w.Head, History: history, Tail: w.Tail}.Messages()) > budget {
		history = history[oldestTurn(history):]
	}
	w.History = history
	return w.Messages()
}

// oldestTurn 返回最早一轮的长度：用户消息连同其后的助手回复，或开头落单的助手回复
func oldestTurn(history []types.Message) int {
	n := 1
	if history[0].Role == types.RoleUser {
		for n < len(history) && history[n].Role == types.RoleAssistant {
			n++
		}
		return n
	}
	for n < len(history) && history[n].Role != types.RoleUser {
		n++
	}
	return n
}
