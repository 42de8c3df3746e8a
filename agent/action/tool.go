package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/types"
)

var toolInputSchema = []byte(`{
  "type": "object",
  "properties": {
    "thought": {"type": "string"},
    "tool_name": {"type": "string", "minLength": 1},
    "args": {"type": "object"}
  },
  "required": ["tool_name"]
}`)

var compiledToolSchema = MustCompileSchema(toolInputSchema)

// ToolInput 工具调用输入
type ToolInput struct {
	Thought  string         `json:"thought,omitempty"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
}

// ToolAction 解析 {"tool_name":..., "args":{...}} 并调用绑定的工具资源
type ToolAction struct{}

func (ToolAction) Name() string                { return "tool" }
func (ToolAction) ResourceNeed() resource.Type { return resource.TypeTool }
func (ToolAction) InputSchema() []byte         { return toolInputSchema }

func (a ToolAction) Run(ctx context.Context, aiMessage string, res resource.Resource, _ *types.ActionOutput, _ RunOptions) *types.ActionOutput {
	var in ToolInput
	if err := ParseInput(aiMessage, compiledToolSchema, &in); err != nil {
		return types.NewFailedOutput(fmt.Sprintf("invalid tool call: %v. Reply with a single JSON object: %s", err, toolInputSchema))
	}
	if res == nil {
		return types.NewFailedOutput("no tool resource is bound to this agent")
	}

	var (
		result any
		err    error
	)
	switch r := res.(type) {
	case *resource.Pack:
		result, err = r.Execute(ctx, in.ToolName, in.Args)
	case resource.Executor:
		if res.Name() != in.ToolName {
			return types.NewFailedOutput(fmt.Sprintf("unknown tool %q, available: %s", in.ToolName, res.Name()))
		}
		result, err = r.Execute(ctx, in.Args)
	default:
		return types.NewFailedOutput(fmt.Sprintf("resource %s is not executable", res.Name()))
	}
	if err != nil {
		return &types.ActionOutput{
			IsExeSuccess: false,
			Content:      fmt.Sprintf("tool %s failed: %v", in.ToolName, err),
			ResourceType: string(resource.TypeTool),
		}
	}

	content, ok := result.(string)
	if !ok {
		data, mErr := json.Marshal(result)
		if mErr != nil {
			content = fmt.Sprint(result)
		} else {
			content = string(data)
		}
	}
	return &types.ActionOutput{
		IsExeSuccess:  true,
		Content:       content,
		ResourceType:  string(resource.TypeTool),
		ResourceValue: in.ToolName,
	}
}
