package resource

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolFunc 工具实现
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// FunctionTool 以函数实现的工具资源
type FunctionTool struct {
	name        string
	description string
	parameters  json.RawMessage
	fn          ToolFunc
}

// NewFunctionTool 创建函数工具，parameters 为参数的 JSON Schema
func NewFunctionTool(name, description string, parameters json.RawMessage, fn ToolFunc) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

func (t *FunctionTool) Name() string { return t.name }
func (t *FunctionTool) Type() Type   { return TypeTool }

// Parameters 参数 schema
func (t *FunctionTool) Parameters() json.RawMessage { return t.parameters }

func (t *FunctionTool) Prompt(context.Context) (string, error) {
	params := "{}"
	if len(t.parameters) > 0 {
		params = string(t.parameters)
	}
	return fmt.Sprintf("tool %s: %s\nparameters: %s", t.name, t.description, params), nil
}

func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t.fn == nil {
		return nil, fmt.Errorf("tool %s has no implementation", t.name)
	}
	return t.fn(ctx, args)
}
