package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/action"
	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/testutil"
	"github.com/BaSui01/agentteam/testutil/fixtures"
	"github.com/BaSui01/agentteam/testutil/mocks"
	"github.com/BaSui01/agentteam/types"
)

func TestPlanChatManager_DependencyOrderAndRelyMessages(t *testing.T) {
	ctx := testutil.TestContext(t)
	plan := fixtures.PlanJSON(
		fixtures.PlanItem{SerialNumber: "1", Agent: "A", Content: "x", Rely: ""},
		fixtures.PlanItem{SerialNumber: "2", Agent: "B", Content: "y", Rely: ""},
		fixtures.PlanItem{SerialNumber: "3", Agent: "C", Content: "z", Rely: "1,2"},
	)
	client := mocks.NewMockLLM().
		WithAgentScript(PlannerName, plan).
		WithAgentScript("A", "R1").
		WithAgentScript("B", "R2").
		WithAgentScript("C", "R3")
	team := newPlanTeam(t, client, []string{"A", "B", "C"}, teamOptions{})

	last, err := team.user.InitiateChat(ctx, team.manager, "goal", nil)
	require.NoError(t, err)
	assert.True(t, last.Success)
	assert.Equal(t, "R3", last.ReportContent())
	assert.Contains(t, last.ActionReport.View, "agent-plans")

	plans, err := team.mem.Plans(ctx, testConv)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	for i, want := range []string{"R1", "R2", "R3"} {
		assert.Equal(t, types.PlanStateComplete, plans[i].State)
		assert.Equal(t, want, plans[i].Result)
		assert.Equal(t, "mock-model", plans[i].AgentModel)
	}

	sent := dispatched(t, team.mem, testConv, "A", "B", "C")
	require.Len(t, sent, 3)
	assert.Equal(t, []string{"PlanManager->A", "PlanManager->B", "PlanManager->C"}, testutil.Senders(sent))
	assert.Equal(t, "[z]z", sent[2].CurrentGoal)

	// 任务 3 的上下文：任务 1、2 的内容与结果成对出现在目标之前
	calls := client.CallsFor("C")
	require.Len(t, calls, 1)
	msgs := calls[0].Request.Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, []types.Message{
		types.NewUserMessage("x"),
		types.NewAssistantMessage("R1"),
		types.NewUserMessage("y"),
		types.NewAssistantMessage("R2"),
		types.NewUserMessage("z"),
	}, msgs[1:])
}

func TestPlanChatManager_FailingAssigneeExhaustsBudget(t *testing.T) {
	ctx := testutil.TestContext(t)
	agentCtx := types.NewAgentContext(testConv)
	agentCtx.MaxRetryRound = 2

	fail := mocks.NewMockAction("run").WithOutputs(types.NewFailedOutput("exit status 1"))
	client := mocks.NewMockLLM().
		WithAgentScript(PlannerName, fixtures.PlanJSON(fixtures.PlanItem{SerialNumber: "1", Agent: "A", Content: "run it"})).
		WithAgentScript("A", "try 1", "try 2", "try 3")
	team := newPlanTeam(t, client, []string{"A"}, teamOptions{
		agentCtx: agentCtx,
		workers:  map[string]agent.Config{"A": {Actions: []action.Action{fail}}},
	})

	last, err := team.user.InitiateChat(ctx, team.manager, "goal", nil)
	require.NoError(t, err)
	assert.False(t, last.Success)
	assert.True(t, last.IsTermination)
	assert.Contains(t, last.Content, "Task 1 still failed after 2 retries")
	assert.Contains(t, last.Content, "exit status 1")

	plans, err := team.mem.Plans(ctx, testConv)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, types.PlanStateFailed, plans[0].State)
	assert.Equal(t, 3, plans[0].RetryTimes)
	assert.Equal(t, 3, fail.CallCount())

	// 重试时把上次的失败原因带给执行者
	sent := dispatched(t, team.mem, testConv, "A")
	require.Len(t, sent, 3)
	assert.Equal(t, "run it", sent[0].Content)
	assert.Contains(t, sent[1].Content, "The previous attempt failed: exit status 1")
}

func TestPlanChatManager_DependencyFailed(t *testing.T) {
	ctx := testutil.TestContext(t)
	client := mocks.NewMockLLM()
	team := newPlanTeam(t, client, []string{"A"}, teamOptions{})

	plans := fixtures.LinearPlans(testConv, "A", "A")
	plans[0].State = types.PlanStateFailed
	plans[0].Result = "boom"
	require.NoError(t, team.mem.SavePlans(ctx, testConv, plans))

	last, err := team.user.InitiateChat(ctx, team.manager, "goal", nil)
	require.NoError(t, err)
	assert.True(t, last.IsTermination)
	assert.Contains(t, last.Content, "task 1 it depends on failed: boom")
	assert.Zero(t, client.CallCount())
}

func TestPlanChatManager_MaxRounds(t *testing.T) {
	ctx := testutil.TestContext(t)
	agentCtx := types.NewAgentContext(testConv)
	agentCtx.MaxChatRound = 2
	client := mocks.NewMockLLM().WithAgentScript("A", "r1", "r2", "r3")
	team := newPlanTeam(t, client, []string{"A"}, teamOptions{agentCtx: agentCtx})
	require.NoError(t, team.mem.SavePlans(ctx, testConv, fixtures.LinearPlans(testConv, "A", "A", "A")))

	last, err := team.user.InitiateChat(ctx, team.manager, "goal", nil)
	require.NoError(t, err)
	assert.Contains(t, last.Content, "exceeded maximum rounds (2)")
	assert.Len(t, dispatched(t, team.mem, testConv, "A"), 2)
}

func TestPlanChatManager_DispatchError(t *testing.T) {
	ctx := testutil.TestContext(t)
	client := mocks.NewMockLLM().WithResponseFunc(func(_ context.Context, req *llm.CompletionRequest) (string, error) {
		return "", types.NewError(types.ErrCodeUnauthorized, "bad key")
	})
	team := newPlanTeam(t, client, []string{"A"}, teamOptions{})
	require.NoError(t, team.mem.SavePlans(ctx, testConv, fixtures.LinearPlans(testConv, "A")))

	last, err := team.user.InitiateChat(ctx, team.manager, "goal", nil)
	require.NoError(t, err)
	assert.Contains(t, last.Content, "A raised an error")

	plans, err := team.mem.Plans(ctx, testConv)
	require.NoError(t, err)
	assert.Equal(t, types.PlanStateFailed, plans[0].State)
}

func TestPlanChatManager_Cancelled(t *testing.T) {
	client := mocks.NewMockLLM()
	team := newPlanTeam(t, client, []string{"A"}, teamOptions{})

	_, err := team.user.InitiateChat(testutil.CancelledContext(), team.manager, "goal", nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, client.CallCount())
}

func TestNewPlanChatManager_Validation(t *testing.T) {
	deps := testDeps(testutil.NewMemory(), nil, types.NewAgentContext(testConv))
	team := newWorkers(t, "A")

	_, err := NewPlanChatManager(agent.Config{}, deps, nil, team, nil)
	assert.ErrorIs(t, err, ErrNoPlanner)
	_, err = NewPlanChatManager(agent.Config{}, deps, team[0], nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTeam)

	m, err := NewPlanChatManager(agent.Config{MaxRetryCount: 5}, deps, team[0], team, nil)
	require.NoError(t, err)
	assert.Zero(t, m.MaxRetryCount())
	assert.Equal(t, PlanManagerName, m.Name())
}

// randomPlan 生成随机无环计划：先随机排出拓扑秩，每个任务只依赖秩更小的任务
func randomPlan(n int, seed int64) ([]fixtures.PlanItem, map[string][]string) {
	r := rand.New(rand.NewSource(seed))
	rank := r.Perm(n)
	items := make([]fixtures.PlanItem, n)
	deps := make(map[string][]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprint(i + 1)
		var rely []string
		for j := 0; j < n; j++ {
			if rank[j] < rank[i] && r.Intn(2) == 0 {
				rely = append(rely, fmt.Sprint(j+1))
			}
		}
		deps[id] = rely
		items[i] = fixtures.PlanItem{SerialNumber: id, Agent: "W", Content: "task-" + id, Rely: strings.Join(rely, ",")}
	}
	return items, deps
}

func TestProperty_DispatchRespectsDependencies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("a task is dispatched only after all tasks it relies on", prop.ForAll(
		func(n int, seed int64) bool {
			ctx := context.Background()
			items, deps := randomPlan(n, seed)
			planJSON := fixtures.PlanJSON(items...)

			client := mocks.NewMockLLM().WithResponseFunc(func(_ context.Context, req *llm.CompletionRequest) (string, error) {
				if req.Context["agent"] == PlannerName {
					return planJSON, nil
				}
				return "done " + req.Messages[len(req.Messages)-1].Content, nil
			})
			team := newPlanTeam(t, client, []string{"W"}, teamOptions{})

			last, err := team.user.InitiateChat(ctx, team.manager, "goal", nil)
			if err != nil || !last.Success {
				t.Logf("chat failed: %v %v", err, last)
				return false
			}

			pos := make(map[string]int, n)
			for i, m := range dispatched(t, team.mem, testConv, "W") {
				id := strings.TrimPrefix(m.Content, "task-")
				if _, dup := pos[id]; dup {
					return false
				}
				pos[id] = i
			}
			if len(pos) != n {
				return false
			}
			for id, rely := range deps {
				for _, d := range rely {
					if pos[d] >= pos[id] {
						t.Logf("task %s dispatched before its dependency %s", id, d)
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 7),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
