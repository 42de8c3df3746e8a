package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/testutil"
	"github.com/BaSui01/agentteam/testutil/mocks"
	"github.com/BaSui01/agentteam/types"
)

func TestMentionedAgents(t *testing.T) {
	names := []string{"Coder", "Data.Scientist", "Sum"}
	tests := []struct {
		text string
		want map[string]int
	}{
		{"Coder should do it", map[string]int{"Coder": 1}},
		{"Coder, then Coder again", map[string]int{"Coder": 2}},
		{"CoderX is not Coder_", map[string]int{}},
		{"coder lower case", map[string]int{}},
		{"ask Data.Scientist and Sum.", map[string]int{"Data.Scientist": 1, "Sum": 1}},
		{"DataXScientist", map[string]int{}},
		{"Summary by Sum", map[string]int{"Sum": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionedAgents(tt.text, names))
		})
	}
}

func newWorkers(t *testing.T, names ...string) []agent.Agent {
	t.Helper()
	mem := testutil.NewMemory()
	out := make([]agent.Agent, 0, len(names))
	for _, n := range names {
		a, err := agent.NewConversableAgent(agent.Config{Profile: agent.Profile{Name: n, Desc: n + " desc"}}, agent.Deps{Memory: mem})
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func TestSpeakerSelector_Select(t *testing.T) {
	ctx := context.Background()
	team := newWorkers(t, "Coder", "Analyst", "Writer")

	t.Run("exact name", func(t *testing.T) {
		s := NewSpeakerSelector(team, nil, nil)
		a, err := s.Select(ctx, &types.GptsPlan{SubTaskAgent: "Analyst"}, "")
		require.NoError(t, err)
		assert.Equal(t, "Analyst", a.Name())
	})

	t.Run("single mention", func(t *testing.T) {
		s := NewSpeakerSelector(team, nil, nil)
		a, err := s.Select(ctx, &types.GptsPlan{SubTaskAgent: "the Writer agent"}, "")
		require.NoError(t, err)
		assert.Equal(t, "Writer", a.Name())
	})

	t.Run("chooser", func(t *testing.T) {
		choose := func(context.Context, *types.GptsPlan, []agent.Agent) (string, error) { return "Writer", nil }
		s := NewSpeakerSelector(team, choose, nil)
		a, err := s.Select(ctx, &types.GptsPlan{SubTaskAgent: "Coder or Analyst"}, "")
		require.NoError(t, err)
		assert.Equal(t, "Writer", a.Name())
	})

	t.Run("round robin after chooser error", func(t *testing.T) {
		choose := func(context.Context, *types.GptsPlan, []agent.Agent) (string, error) { return "", errors.New("down") }
		s := NewSpeakerSelector(team, choose, nil)
		a, err := s.Select(ctx, &types.GptsPlan{SubTaskAgent: "nobody"}, "Writer")
		require.NoError(t, err)
		assert.Equal(t, "Coder", a.Name())

		a, err = s.Select(ctx, &types.GptsPlan{SubTaskAgent: "nobody"}, "Coder")
		require.NoError(t, err)
		assert.Equal(t, "Analyst", a.Name())

		a, err = s.Select(ctx, &types.GptsPlan{SubTaskAgent: "nobody"}, "")
		require.NoError(t, err)
		assert.Equal(t, "Coder", a.Name())
	})

	t.Run("empty team", func(t *testing.T) {
		_, err := NewSpeakerSelector(nil, nil, nil).Select(ctx, &types.GptsPlan{}, "")
		assert.ErrorIs(t, err, ErrEmptyTeam)
	})
}

func TestLLMChooser(t *testing.T) {
	ctx := context.Background()
	team := newWorkers(t, "Coder", "Analyst")

	client := mocks.NewMockLLM().WithAgentScript("speaker_selector", "I pick Analyst.", "Coder and Analyst")
	choose := NewLLMChooser(client, nil, types.NewAgentContext("c"))

	name, err := choose(ctx, &types.GptsPlan{ConvID: "c", SubTaskContent: "analyze"}, team)
	require.NoError(t, err)
	assert.Equal(t, "Analyst", name)
	prompt := client.LastCall().Request.Messages[0].Content
	assert.Contains(t, prompt, "Coder: Coder desc")

	_, err = choose(ctx, &types.GptsPlan{ConvID: "c"}, team)
	assert.Error(t, err)
}
