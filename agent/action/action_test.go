package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/types"
)

type panicAction struct{ BlankAction }

func (panicAction) Name() string { return "boom" }
func (panicAction) Run(context.Context, string, resource.Resource, *types.ActionOutput, RunOptions) *types.ActionOutput {
	panic("kaboom")
}

type nilAction struct{ BlankAction }

func (nilAction) Run(context.Context, string, resource.Resource, *types.ActionOutput, RunOptions) *types.ActionOutput {
	return nil
}

func TestSafeRun(t *testing.T) {
	ctx := context.Background()

	out := SafeRun(ctx, panicAction{}, "x", nil, nil, RunOptions{})
	assert.False(t, out.IsExeSuccess)
	assert.Contains(t, out.Content, "kaboom")

	out = SafeRun(ctx, nilAction{}, "x", nil, nil, RunOptions{})
	assert.False(t, out.IsExeSuccess)

	out = SafeRun(ctx, BlankAction{}, "hello", nil, nil, RunOptions{})
	assert.True(t, out.IsExeSuccess)
	assert.Equal(t, "hello", out.Content)
}

func TestToolAction(t *testing.T) {
	ctx := context.Background()
	mul := resource.NewFunctionTool("mul", "multiply", nil, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) * args["b"].(float64), nil
	})
	broken := resource.NewFunctionTool("broken", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})
	pack := resource.NewPack("tools", mul, broken)
	a := ToolAction{}

	out := a.Run(ctx, `{"tool_name":"mul","args":{"a":3,"b":7}}`, pack, nil, RunOptions{})
	assert.True(t, out.IsExeSuccess, out.Content)
	assert.Equal(t, "21", out.Content)

	out = a.Run(ctx, `{"tool_name":"mul","args":{"a":3,"b":7}}`, mul, nil, RunOptions{})
	assert.True(t, out.IsExeSuccess)

	out = a.Run(ctx, `{"tool_name":"broken"}`, pack, nil, RunOptions{})
	assert.False(t, out.IsExeSuccess)
	assert.Contains(t, out.Content, "disk full")

	out = a.Run(ctx, `{"args":{}}`, pack, nil, RunOptions{})
	assert.False(t, out.IsExeSuccess)
	assert.Contains(t, out.Content, "invalid tool call")

	out = a.Run(ctx, `{"tool_name":"mul"}`, nil, nil, RunOptions{})
	assert.False(t, out.IsExeSuccess)

	out = a.Run(ctx, `{"tool_name":"other"}`, mul, nil, RunOptions{})
	assert.False(t, out.IsExeSuccess)
	assert.Contains(t, out.Content, "unknown tool")
}
