package team

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/action"
	"github.com/BaSui01/agentteam/agent/manager"
	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/config"
	"github.com/BaSui01/agentteam/types"
)

// TypeToolAssistant 通过 JSON 工具调用完成任务的工作智能体
const TypeToolAssistant = "tool_assistant"

// RegisterBuiltins 注册 assistant 之外的内置类型
func RegisterBuiltins(reg *agent.Registry) {
	reg.Register(TypeToolAssistant, "worker that answers by calling one of its tools with a JSON object", func(cfg agent.Config, deps agent.Deps) (agent.Agent, error) {
		cfg.Actions = append(cfg.Actions, action.ToolAction{})
		return agent.NewConversableAgent(cfg, deps)
	})
}

// Team 组装好的团队
type Team struct {
	Name string
	Mode types.TeamMode
	// Entry 用户代理直接对话的智能体
	Entry   agent.Agent
	Members []agent.Agent
	// Planner 仅 auto_plan 模式非空
	Planner agent.Agent
}

// Builder 根据团队配置组装智能体（Builder 模式）
type Builder struct {
	registry  *agent.Registry
	resources map[string]resource.Resource
	defaults  config.AgentDefaults
	chooser   func(deps agent.Deps) manager.ChooseFunc
	logger    *zap.Logger
}

// NewBuilder 创建构建器
func NewBuilder(reg *agent.Registry) *Builder {
	return &Builder{
		registry:  reg,
		resources: make(map[string]resource.Resource),
		defaults:  config.DefaultAgentDefaults(),
		logger:    zap.NewNop(),
	}
}

// WithResources 注册可被成员按名字引用的资源
func (b *Builder) WithResources(res ...resource.Resource) *Builder {
	for _, r := range res {
		b.resources[r.Name()] = r
	}
	return b
}

// WithDefaults 设置成员默认参数
func (b *Builder) WithDefaults(d config.AgentDefaults) *Builder {
	b.defaults = d
	return b
}

// WithLLMSpeakerChoice 计划任务的负责人不明确时由模型挑选
func (b *Builder) WithLLMSpeakerChoice() *Builder {
	b.chooser = func(deps agent.Deps) manager.ChooseFunc {
		if deps.LLM == nil {
			return nil
		}
		return manager.NewLLMChooser(deps.LLM, deps.Selector, deps.AgentContext)
	}
	return b
}

// WithLogger 设置日志器
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Resources 已注册的资源名
func (b *Builder) Resources() []string {
	names := make([]string, 0, len(b.resources))
	for n := range b.resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build 为一次会话组装团队。deps 中的 Memory 与 AgentContext 由所有成员共享。
func (b *Builder) Build(tc config.TeamConfig, deps agent.Deps) (*Team, error) {
	if len(tc.Agents) == 0 {
		return nil, fmt.Errorf("team %s: %w", tc.Name, manager.ErrEmptyTeam)
	}
	mode := types.TeamMode(tc.Mode)
	if mode == "" {
		mode = types.TeamModeAutoPlan
	}
	deps.AgentContext.TeamMode = mode

	members := make([]agent.Agent, 0, len(tc.Agents))
	for _, ac := range tc.Agents {
		m, err := b.member(ac, deps)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", tc.Name, err)
		}
		members = append(members, m)
	}

	t := &Team{Name: tc.Name, Mode: mode, Members: members}
	switch mode {
	case types.TeamModeSingleAgent:
		if len(members) != 1 {
			return nil, fmt.Errorf("team %s: %w: single_agent mode needs exactly one agent, got %d",
				tc.Name, agent.ErrInvalidConfig, len(members))
		}
		t.Entry = members[0]

	case types.TeamModeAutoPlan:
		planner, err := manager.NewPlannerAgent(agent.Config{MaxRetryCount: b.defaults.MaxRetryCount}, deps, members)
		if err != nil {
			return nil, fmt.Errorf("team %s: planner: %w", tc.Name, err)
		}
		var choose manager.ChooseFunc
		if b.chooser != nil {
			choose = b.chooser(deps)
		}
		m, err := manager.NewPlanChatManager(agent.Config{}, deps, planner, members, choose)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", tc.Name, err)
		}
		t.Planner = planner
		t.Entry = m

	case types.TeamModeAwelLayout:
		edges := make([]manager.Edge, 0, len(tc.Layout.Edges))
		for _, e := range tc.Layout.Edges {
			edges = append(edges, manager.Edge{From: e.From, To: e.To})
		}
		m, err := manager.NewLayoutChatManager(agent.Config{}, deps, members, edges)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", tc.Name, err)
		}
		t.Entry = m

	default:
		return nil, fmt.Errorf("team %s: %w: %q", tc.Name, ErrUnknownMode, tc.Mode)
	}

	b.logger.Debug("team built",
		zap.String("team", tc.Name),
		zap.String("mode", string(mode)),
		zap.Int("members", len(members)))
	return t, nil
}

func (b *Builder) member(ac config.AgentConfig, deps agent.Deps) (agent.Agent, error) {
	typ := ac.Type
	if typ == "" {
		typ = agent.TypeAssistant
	}
	retries := b.defaults.MaxRetryCount
	if ac.MaxRetryCount != nil {
		retries = *ac.MaxRetryCount
	}

	res := make([]resource.Resource, 0, len(ac.Resources))
	var tools []resource.Resource
	for _, name := range ac.Resources {
		r, ok := b.resources[name]
		if !ok {
			return nil, fmt.Errorf("agent %s: %w: %s", ac.Name, ErrUnknownResource, name)
		}
		if r.Type() == resource.TypeTool {
			tools = append(tools, r)
			continue
		}
		res = append(res, r)
	}
	// 多个工具打包后由 ToolAction 按名字分发
	switch len(tools) {
	case 0:
	case 1:
		res = append(res, tools[0])
	default:
		res = append(res, resource.NewPack(ac.Name+"-tools", tools...))
	}

	cfg := agent.Config{
		Profile: agent.Profile{
			Name:        ac.Name,
			Role:        ac.Role,
			Goal:        ac.Goal,
			Desc:        ac.Desc,
			Constraints: ac.Constraints,
		},
		MaxRetryCount: retries,
		Resources:     res,
		Replies:       cannedReplies(ac.Replies),
	}
	return b.registry.Create(typ, cfg, deps)
}

// cannedReplies 把配置的固定回复注册为回复处理器，没有时返回 nil
func cannedReplies(replies []config.ReplyConfig) *agent.ReplyRegistry {
	if len(replies) == 0 {
		return nil
	}
	reg := agent.NewReplyRegistry()
	for _, rc := range replies {
		var triggers []agent.Trigger
		if rc.From != "" {
			triggers = append(triggers, agent.ByName(rc.From))
		}
		if rc.Role != "" {
			triggers = append(triggers, agent.ByRole(rc.Role))
		}
		reg.Register(agent.AnyOf(triggers...), agent.StaticReply(rc.Content))
	}
	return reg
}
