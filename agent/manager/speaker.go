package manager

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/types"
)

// MentionedAgents 统计 text 中各名字作为完整单词出现的次数（区分大小写），未出现的名字不在结果中
func MentionedAgents(text string, names []string) map[string]int {
	counts := make(map[string]int)
	for _, name := range names {
		if name == "" {
			continue
		}
		re := regexp.MustCompile(regexp.QuoteMeta(name))
		n := 0
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if isBoundary(text, loc[0], loc[1]) {
				n++
			}
		}
		if n > 0 {
			counts[name] = n
		}
	}
	return counts
}

func isBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ChooseFunc 可选的发言人选择器，返回候选中的一个名字
type ChooseFunc func(ctx context.Context, task *types.GptsPlan, candidates []agent.Agent) (string, error)

// SpeakerSelector 为计划任务挑选执行者
type SpeakerSelector struct {
	agents []agent.Agent
	choose ChooseFunc
	logger *zap.Logger
}

// NewSpeakerSelector 创建选择器，choose 可为 nil
func NewSpeakerSelector(agents []agent.Agent, choose ChooseFunc, logger *zap.Logger) *SpeakerSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeakerSelector{agents: agents, choose: choose, logger: logger}
}

// Agents 返回团队成员
func (s *SpeakerSelector) Agents() []agent.Agent { return s.agents }

// Names 返回成员名字
func (s *SpeakerSelector) Names() []string {
	names := make([]string, 0, len(s.agents))
	for _, a := range s.agents {
		names = append(names, a.Name())
	}
	return names
}

// Lookup 按名字查找成员
func (s *SpeakerSelector) Lookup(name string) (agent.Agent, bool) {
	for _, a := range s.agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Select 依次尝试：名字精确匹配 → 唯一被提及的成员 → choose → lastSpeaker 之后轮询
func (s *SpeakerSelector) Select(ctx context.Context, task *types.GptsPlan, lastSpeaker string) (agent.Agent, error) {
	if len(s.agents) == 0 {
		return nil, ErrEmptyTeam
	}
	if a, ok := s.Lookup(task.SubTaskAgent); ok {
		return a, nil
	}

	mentioned := MentionedAgents(task.SubTaskAgent, s.Names())
	if len(mentioned) == 1 {
		for name := range mentioned {
			a, _ := s.Lookup(name)
			return a, nil
		}
	}

	if s.choose != nil {
		name, err := s.choose(ctx, task, s.agents)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("speaker selection failed, falling back to round robin",
				zap.String("task", task.SubTaskID),
				zap.Error(err))
		} else if a, ok := s.Lookup(name); ok {
			return a, nil
		}
	}

	return s.next(lastSpeaker), nil
}

// next lastSpeaker 之后的成员；lastSpeaker 不在团队中时返回第一个
func (s *SpeakerSelector) next(lastSpeaker string) agent.Agent {
	for i, a := range s.agents {
		if a.Name() == lastSpeaker {
			return s.agents[(i+1)%len(s.agents)]
		}
	}
	return s.agents[0]
}

// NewLLMChooser 让模型从候选中选择执行者，输出中唯一被提及的名字即为结果
func NewLLMChooser(client llm.Client, selector *llm.ModelSelector, agentCtx types.AgentContext) ChooseFunc {
	if selector == nil {
		selector = llm.NewModelSelector(client)
	}
	return func(ctx context.Context, task *types.GptsPlan, candidates []agent.Agent) (string, error) {
		var roster strings.Builder
		names := make([]string, 0, len(candidates))
		for _, a := range candidates {
			fmt.Fprintf(&roster, "- %s\n", a.Profile().Describe())
			names = append(names, a.Name())
		}

		model, err := selector.Select(ctx, llm.SelectRequest{Agent: "speaker_selector", Roster: agentCtx.Models})
		if err != nil {
			return "", err
		}
		out, err := client.Create(ctx, &llm.CompletionRequest{
			Messages: []types.Message{
				types.NewSystemMessage("You are in a role play game. The following roles are available:\n" + roster.String() +
					"Read the task, then select the next role to play. Only return the role name."),
				types.NewUserMessage(task.SubTaskContent),
			},
			Model:        model,
			MaxNewTokens: 64,
			Temperature:  0,
			Context:      map[string]any{"conv_id": task.ConvID, "agent": "speaker_selector"},
		})
		if err != nil {
			return "", err
		}

		mentioned := MentionedAgents(out, names)
		if len(mentioned) != 1 {
			return "", fmt.Errorf("speaker selector named %d agents in %q", len(mentioned), out)
		}
		for name := range mentioned {
			return name, nil
		}
		return "", nil
	}
}
