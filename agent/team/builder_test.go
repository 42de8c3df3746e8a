package team

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/manager"
	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/config"
	"github.com/BaSui01/agentteam/testutil"
	"github.com/BaSui01/agentteam/testutil/fixtures"
	"github.com/BaSui01/agentteam/testutil/mocks"
	"github.com/BaSui01/agentteam/types"
)

func newTestBuilder(res ...resource.Resource) *Builder {
	reg := agent.NewRegistry(nil)
	RegisterBuiltins(reg)
	return NewBuilder(reg).WithResources(res...)
}

func buildDeps() agent.Deps {
	return agent.Deps{
		Memory:       testutil.NewMemory(),
		AgentContext: types.NewAgentContext(fixtures.DefaultConvID),
		LLM:          mocks.NewMockLLM(),
	}
}

func TestBuilder_Modes(t *testing.T) {
	b := newTestBuilder()

	t.Run("auto_plan", func(t *testing.T) {
		team, err := b.Build(fixtures.AutoPlanTeam(), buildDeps())
		require.NoError(t, err)
		assert.Equal(t, types.TeamModeAutoPlan, team.Mode)
		assert.IsType(t, &manager.PlanChatManager{}, team.Entry)
		require.NotNil(t, team.Planner)
		assert.Equal(t, manager.PlannerName, team.Planner.Name())
		assert.Len(t, team.Members, 3)
	})

	t.Run("mode defaults to auto_plan", func(t *testing.T) {
		tc := fixtures.AutoPlanTeam()
		tc.Mode = ""
		team, err := b.Build(tc, buildDeps())
		require.NoError(t, err)
		assert.Equal(t, types.TeamModeAutoPlan, team.Mode)
	})

	t.Run("single_agent", func(t *testing.T) {
		team, err := b.Build(fixtures.SingleAgentTeam(), buildDeps())
		require.NoError(t, err)
		assert.Equal(t, fixtures.CodeEngineer, team.Entry.Name())
		assert.Nil(t, team.Planner)
	})

	t.Run("awel_layout", func(t *testing.T) {
		team, err := b.Build(fixtures.LayoutTeam(), buildDeps())
		require.NoError(t, err)
		lm, ok := team.Entry.(*manager.LayoutChatManager)
		require.True(t, ok)
		assert.Equal(t, []string{fixtures.CodeEngineer, fixtures.DataScientist, fixtures.Summarizer}, lm.Order())
	})
}

func TestBuilder_Errors(t *testing.T) {
	b := newTestBuilder()

	tests := []struct {
		name   string
		mutate func(tc *config.TeamConfig)
		want   error
	}{
		{"no agents", func(tc *config.TeamConfig) { tc.Agents = nil }, manager.ErrEmptyTeam},
		{"unknown mode", func(tc *config.TeamConfig) { tc.Mode = "swarm" }, ErrUnknownMode},
		{"unknown type", func(tc *config.TeamConfig) { tc.Agents[0].Type = "wizard" }, agent.ErrAgentTypeNotRegistered},
		{"unknown resource", func(tc *config.TeamConfig) { tc.Agents[0].Resources = []string{"ghost"} }, ErrUnknownResource},
		{"single agent with two members", func(tc *config.TeamConfig) { tc.Mode = string(types.TeamModeSingleAgent) }, agent.ErrInvalidConfig},
		{"layout edge to unknown agent", func(tc *config.TeamConfig) {
			tc.Mode = string(types.TeamModeAwelLayout)
			tc.Layout.Edges = []config.EdgeConfig{{From: fixtures.CodeEngineer, To: "ghost"}}
		}, manager.ErrUnknownAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := fixtures.AutoPlanTeam()
			tt.mutate(&tc)
			_, err := b.Build(tc, buildDeps())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuilder_MemberConfig(t *testing.T) {
	calc := mocks.NewMockTool("calc")
	search := mocks.NewMockTool("search")
	notes := resource.NewText("notes", resource.TypeKnowledge, "Q3 revenue was 1.2M")
	b := newTestBuilder(calc, search, notes).WithDefaults(config.AgentDefaults{MaxRetryCount: 5})
	assert.Equal(t, []string{"calc", "notes", "search"}, b.Resources())

	zero := 0
	tc := config.TeamConfig{
		Name: "tools",
		Mode: string(types.TeamModeAutoPlan),
		Agents: []config.AgentConfig{
			{Name: "Worker", Type: TypeToolAssistant, Resources: []string{"calc", "search", "notes"}},
			{Name: "Writer", MaxRetryCount: &zero},
		},
	}
	team, err := b.Build(tc, buildDeps())
	require.NoError(t, err)

	worker := team.Members[0].(*agent.ConversableAgent)
	assert.Equal(t, 5, worker.MaxRetryCount())
	res := worker.Resources()
	require.Len(t, res, 2)
	assert.Equal(t, "notes", res[0].Name())
	pack, ok := res[1].(*resource.Pack)
	require.True(t, ok)
	assert.Len(t, pack.Resources(), 2)

	writer := team.Members[1].(*agent.ConversableAgent)
	assert.Zero(t, writer.MaxRetryCount())
	assert.Empty(t, writer.Resources())
}
