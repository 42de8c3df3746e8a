package manager

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/types"
)

// LayoutManagerName 布局管理者的默认名字
const LayoutManagerName = "LayoutManager"

// Edge 布局中的一条边，To 在 From 之后执行
type Edge struct {
	From string
	To   string
}

// LayoutChatManager 按固定的 DAG 布局依次驱动成员
type LayoutChatManager struct {
	*agent.ConversableAgent

	team     map[string]agent.Agent
	graph    *Graph
	order    []string
	maxRound int
	logger   *zap.Logger
}

// NewLayoutChatManager 校验布局（成员已知、无环）并创建管理者
func NewLayoutChatManager(cfg agent.Config, deps agent.Deps, team []agent.Agent, edges []Edge) (*LayoutChatManager, error) {
	if len(team) == 0 {
		return nil, ErrEmptyTeam
	}
	if cfg.Profile.Name == "" {
		cfg.Profile.Name = LayoutManagerName
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	names := make([]string, 0, len(team))
	byName := make(map[string]agent.Agent, len(team))
	for _, a := range team {
		names = append(names, a.Name())
		byName[a.Name()] = a
	}
	g, err := NewGraph(names...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agent.ErrInvalidConfig, err)
	}
	for _, e := range edges {
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, err
		}
	}
	order, err := g.TopoSort()
	if err != nil {
		return nil, err
	}

	m := &LayoutChatManager{
		team:     byName,
		graph:    g,
		order:    order,
		maxRound: deps.AgentContext.WithDefaults().MaxChatRound,
		logger:   logger.With(zap.String("agent", cfg.Profile.Name)),
	}
	cfg.MaxRetryCount = 0
	cfg.Hooks.Thinking = passThrough
	cfg.Hooks.Act = m.drive

	base, err := agent.NewConversableAgent(cfg, deps)
	if err != nil {
		return nil, err
	}
	m.ConversableAgent = base
	return m, nil
}

// Order 返回执行顺序
func (m *LayoutChatManager) Order() []string { return append([]string(nil), m.order...) }

// drive 按拓扑序执行。节点至少有一个已执行的上游选择了它（NextSpeakers 为空表示全部下游）才会运行；
// 根节点总是运行。
func (m *LayoutChatManager) drive(ctx context.Context, received *types.AgentMessage, _ string, _ agent.Agent) (*types.ActionOutput, error) {
	convID := received.ConvID
	goal := received.CurrentGoal
	if goal == "" {
		goal = received.Content
	}
	log := m.logger.With(zap.String("conv_id", convID))

	outputs := make(map[string]*types.AgentMessage, len(m.order))
	var lastSink *types.AgentMessage
	rounds := 0

	for _, name := range m.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		upstream := m.graph.Upstream(name)
		if !m.activated(name, upstream, outputs) {
			log.Debug("node skipped", zap.String("node", name))
			continue
		}
		if rounds >= m.maxRound {
			return types.NewFailedOutput(fmt.Sprintf("The conversation exceeded maximum rounds (%d).", m.maxRound)), nil
		}
		rounds++

		var rely []*types.AgentMessage
		for _, up := range upstream {
			if out, ok := outputs[up]; ok {
				rely = append(rely, out)
			}
		}

		log.Info("run node", zap.String("node", name), zap.Int("upstream", len(rely)))
		reply, err := m.Send(ctx, &types.AgentMessage{
			Role:        types.MessageRoleHuman,
			Content:     goal,
			CurrentGoal: goal,
			Context:     received.Context,
		}, m.team[name], agent.SendOptions{RequestReply: true, RelyMessages: rely})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return types.NewFailedOutput(fmt.Sprintf("Node %s raised an error: %v", name, err)), nil
		}
		if !reply.Success {
			return types.NewFailedOutput(fmt.Sprintf("Node %s failed: %s", name, reply.Content)), nil
		}

		outputs[name] = reply
		if len(m.graph.Downstream(name)) == 0 {
			lastSink = reply
		}
	}

	if lastSink == nil {
		return types.NewFailedOutput("No sink node was executed."), nil
	}
	out := types.NewSuccessOutput(lastSink.ReportContent())
	if lastSink.ActionReport != nil {
		out.View = lastSink.ActionReport.View
	}
	return out, nil
}

func (m *LayoutChatManager) activated(name string, upstream []string, outputs map[string]*types.AgentMessage) bool {
	if len(upstream) == 0 {
		return true
	}
	for _, up := range upstream {
		out, ok := outputs[up]
		if !ok {
			continue
		}
		if out.ActionReport == nil || len(out.ActionReport.NextSpeakers) == 0 {
			return true
		}
		if slices.Contains(out.ActionReport.NextSpeakers, name) {
			return true
		}
	}
	return false
}
