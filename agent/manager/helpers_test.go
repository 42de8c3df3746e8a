package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/llm/retry"
	"github.com/BaSui01/agentteam/testutil"
	"github.com/BaSui01/agentteam/types"
)

const testConv = "conv-plan"

type planTeam struct {
	mem     *memory.GptsMemory
	user    *agent.UserProxyAgent
	planner *agent.ConversableAgent
	manager *PlanChatManager
	workers map[string]agent.Agent
}

type teamOptions struct {
	agentCtx types.AgentContext
	workers  map[string]agent.Config
	mem      *memory.GptsMemory
}

func testDeps(mem *memory.GptsMemory, client llm.Client, agentCtx types.AgentContext) agent.Deps {
	return agent.Deps{
		Memory:       mem,
		AgentContext: agentCtx,
		LLM:          client,
		Retry:        retry.Policy{MaxAttempts: 3},
	}
}

// newPlanTeam 创建规划团队，workers 中未给出配置的成员使用默认配置
func newPlanTeam(t *testing.T, client llm.Client, names []string, opts teamOptions) *planTeam {
	t.Helper()
	agentCtx := opts.agentCtx
	if agentCtx.ConvID == "" {
		agentCtx = types.NewAgentContext(testConv)
	}
	mem := opts.mem
	if mem == nil {
		mem = testutil.NewMemory()
	}
	deps := testDeps(mem, client, agentCtx)

	team := make([]agent.Agent, 0, len(names))
	workers := make(map[string]agent.Agent, len(names))
	for _, n := range names {
		cfg := opts.workers[n]
		cfg.Profile.Name = n
		w, err := agent.NewConversableAgent(cfg, deps)
		require.NoError(t, err)
		team = append(team, w)
		workers[n] = w
	}

	planner, err := NewPlannerAgent(agent.Config{MaxRetryCount: agent.DefaultMaxRetryCount}, deps, team)
	require.NoError(t, err)
	m, err := NewPlanChatManager(agent.Config{}, deps, planner, team, nil)
	require.NoError(t, err)
	user, err := agent.NewUserProxyAgent(agentCtx.ConvID, mem, nil)
	require.NoError(t, err)

	return &planTeam{mem: mem, user: user, planner: planner, manager: m, workers: workers}
}

// dispatched 管理者发给成员的消息，按发送顺序
func dispatched(t *testing.T, mem *memory.GptsMemory, convID string, names ...string) []*types.AgentMessage {
	t.Helper()
	msgs, err := mem.Messages(testutil.TestContext(t), convID)
	require.NoError(t, err)
	var out []*types.AgentMessage
	for _, m := range msgs {
		if m.Sender != PlanManagerName {
			continue
		}
		for _, n := range names {
			if m.Receiver == n {
				out = append(out, m)
			}
		}
	}
	return out
}
