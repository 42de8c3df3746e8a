package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/config"
)

var clockParams = json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string","description":"IANA zone, e.g. Asia/Shanghai; UTC when empty"}}}`)

// builtinTools 始终可被团队成员引用的工具
func builtinTools() []resource.Resource {
	return []resource.Resource{
		resource.NewFunctionTool("clock", "returns the current date and time", clockParams,
			func(_ context.Context, args map[string]any) (any, error) {
				loc := time.UTC
				if tz, _ := args["timezone"].(string); tz != "" {
					l, err := time.LoadLocation(tz)
					if err != nil {
						return nil, fmt.Errorf("unknown timezone %q", tz)
					}
					loc = l
				}
				return time.Now().In(loc).Format(time.RFC3339), nil
			}),
	}
}

// loadResources 内置工具加上配置中的文本资源
func loadResources(cfgs []config.ResourceConfig) ([]resource.Resource, error) {
	out := builtinTools()
	for _, rc := range cfgs {
		text := rc.Text
		if rc.File != "" {
			b, err := os.ReadFile(rc.File)
			if err != nil {
				return nil, fmt.Errorf("resource %s: %w", rc.Name, err)
			}
			text = string(b)
		}
		typ := resource.TypeKnowledge
		if rc.Type != "" {
			typ = resource.Type(rc.Type)
		}
		out = append(out, resource.NewText(rc.Name, typ, text))
	}
	return out, nil
}
