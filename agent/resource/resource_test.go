package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack_PromptAndExecute(t *testing.T) {
	add := NewFunctionTool("add", "add two numbers", []byte(`{"type":"object"}`),
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})
	kb := NewText("faq", TypeKnowledge, "opening hours: 9-5")
	inner := NewPack("math", add)
	pack := NewPack("all", kb, inner)

	prompt, err := pack.Prompt(context.Background())
	require.NoError(t, err)
	assert.Contains(t, prompt, "tool add: add two numbers")
	assert.Contains(t, prompt, "opening hours")

	out, err := pack.Execute(context.Background(), "add", map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)

	_, err = pack.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = pack.Execute(context.Background(), "faq", nil)
	assert.ErrorContains(t, err, "not executable")
}

func TestMatch(t *testing.T) {
	kb := NewText("faq", TypeKnowledge, "x")
	db := NewText("schema", TypeDatabase, "y")
	tools := NewPack("tools", NewFunctionTool("t", "", nil, nil))

	assert.Nil(t, Match([]Resource{kb}, ""))
	assert.Equal(t, db, Match([]Resource{kb, db}, TypeDatabase))
	assert.Equal(t, tools, Match([]Resource{kb, tools}, TypeTool))
	assert.Nil(t, Match([]Resource{kb}, TypeInternet))
}
