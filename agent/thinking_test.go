package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/testutil"
	"github.com/BaSui01/agentteam/testutil/mocks"
	"github.com/BaSui01/agentteam/types"
)

func TestBuildSystemPrompt(t *testing.T) {
	ctx := context.Background()
	p := Profile{Name: "Coder", Role: "Engineer", Goal: "write code", Constraints: []string{"be brief", "use go"}}
	res := []resource.Resource{
		resource.NewText("schema", resource.TypeDatabase, "table sales(id, amount)"),
		mocks.NewMockTool("calc"),
	}

	prompt, err := BuildSystemPrompt(ctx, p, res, "zh")
	require.NoError(t, err)
	assert.Contains(t, prompt, "You are a Engineer, named Coder.")
	assert.Contains(t, prompt, "Your goal is: write code")
	assert.Contains(t, prompt, "2. use go")
	assert.Contains(t, prompt, "table sales(id, amount)")
	assert.Contains(t, prompt, "- calc: mock tool")
	assert.Contains(t, prompt, "Please answer in Chinese.")
}

func TestWindowHistory(t *testing.T) {
	var history []*types.AgentMessage
	for i := 0; i < 8; i++ {
		history = append(history, &types.AgentMessage{MessageID: fmt.Sprint(i), Content: fmt.Sprint(i)})
	}

	assert.Equal(t, []string{"0", "1", "5", "6", "7"}, testutil.Contents(windowHistory(history)))
	assert.Equal(t, []string{"0", "1", "2"}, testutil.Contents(windowHistory(history[:3])))
}

func TestDefaultThinkingMessages(t *testing.T) {
	ctx := testutil.TestContext(t)
	mem := testutil.NewMemory()
	a := newTestAgent(t, mem, nil, Config{Profile: Profile{Name: "Coder"}})

	var received *types.AgentMessage
	for i, c := range []string{"q1", "a1", "q2"} {
		sender, receiver := "Manager", "Coder"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		stored, err := mem.AppendMessage(ctx, &types.AgentMessage{ConvID: testConv, Sender: sender, Receiver: receiver, Content: c, CurrentGoal: "g"})
		require.NoError(t, err)
		received = stored
	}
	rely := []*types.AgentMessage{
		{Sender: "Manager", Role: types.MessageRoleHuman, Content: "step 1"},
		{Sender: "Other", Role: types.MessageRoleAI, Content: "raw", ActionReport: types.NewSuccessOutput("R1")},
	}

	msgs, err := a.DefaultThinkingMessages(ctx, ThinkingInput{Received: received, Rely: rely})
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.NewUserMessage("step 1"), msgs[1])
	assert.Equal(t, types.NewAssistantMessage("R1"), msgs[2])
	assert.Equal(t, types.NewUserMessage("q1"), msgs[3])
	assert.Equal(t, types.NewAssistantMessage("a1"), msgs[4])
	assert.Equal(t, types.NewUserMessage("q2"), msgs[5])

	msgs, err = a.DefaultThinkingMessages(ctx, ThinkingInput{Received: received, PreviousOutput: "bad", FailReason: "why"})
	require.NoError(t, err)
	assert.Equal(t, types.NewAssistantMessage("bad"), msgs[len(msgs)-2])
	assert.Equal(t, types.NewUserMessage("why"), msgs[len(msgs)-1])
}

func TestDefaultWindow_Segments(t *testing.T) {
	ctx := testutil.TestContext(t)
	mem := testutil.NewMemory()
	a := newTestAgent(t, mem, nil, Config{Profile: Profile{Name: "Coder"}})

	var received *types.AgentMessage
	for i, c := range []string{"q1", "a1", "q2"} {
		sender, receiver := "Manager", "Coder"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		stored, err := mem.AppendMessage(ctx, &types.AgentMessage{ConvID: testConv, Sender: sender, Receiver: receiver, Content: c, CurrentGoal: "g"})
		require.NoError(t, err)
		received = stored
	}
	rely := []*types.AgentMessage{{Sender: "Manager", Role: types.MessageRoleHuman, Content: "step 1"}}

	w, err := a.DefaultWindow(ctx, ThinkingInput{Received: received, Rely: rely, PreviousOutput: "bad", FailReason: "why"})
	require.NoError(t, err)
	assert.Len(t, w.Head, 2)
	assert.Equal(t, []types.Message{types.NewUserMessage("q1"), types.NewAssistantMessage("a1")}, w.History)
	assert.Equal(t, []types.Message{
		types.NewUserMessage("q2"),
		types.NewAssistantMessage("bad"),
		types.NewUserMessage("why"),
	}, w.Tail)
}
