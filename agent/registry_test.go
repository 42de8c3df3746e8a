package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/testutil"
)

func TestRegistry_Builtin(t *testing.T) {
	r := NewRegistry(nil)
	assert.True(t, r.IsRegistered(TypeAssistant))
	assert.Equal(t, []string{TypeAssistant}, r.ListTypes())

	desc, ok := r.Describe(TypeAssistant)
	assert.True(t, ok)
	assert.NotEmpty(t, desc)

	a, err := r.Create(TypeAssistant, Config{Profile: Profile{Name: "Coder"}}, Deps{Memory: testutil.NewMemory()})
	require.NoError(t, err)
	assert.Equal(t, "Coder", a.Name())
	assert.IsType(t, &ConversableAgent{}, a)
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("critic", "reviews drafts", func(cfg Config, deps Deps) (Agent, error) {
		cfg.Profile.Role = "Critic"
		return NewConversableAgent(cfg, deps)
	})
	assert.Equal(t, []string{TypeAssistant, "critic"}, r.ListTypes())

	a, err := r.Create("critic", Config{Profile: Profile{Name: "c"}}, Deps{Memory: testutil.NewMemory()})
	require.NoError(t, err)
	assert.Equal(t, "Critic", a.Profile().Role)

	r.Unregister("critic")
	assert.False(t, r.IsRegistered("critic"))
	_, err = r.Create("critic", Config{Profile: Profile{Name: "c"}}, Deps{})
	assert.ErrorIs(t, err, ErrAgentTypeNotRegistered)
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")
	r.Register("broken", "", func(Config, Deps) (Agent, error) { return nil, boom })

	_, err := r.Create("broken", Config{}, Deps{})
	assert.ErrorIs(t, err, boom)

	_, err = r.Create(TypeAssistant, Config{Profile: Profile{Name: "x"}}, Deps{})
	assert.ErrorIs(t, err, ErrNoMemory)
}
