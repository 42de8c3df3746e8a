package fixtures

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlanItem 规划器输出中的一个任务
type PlanItem struct {
	SerialNumber any    `json:"serial_number"`
	Agent        string `json:"agent"`
	Content      string `json:"content"`
	Rely         any    `json:"rely"`
}

// PlanJSON 把任务渲染为规划器的 JSON 数组输出
func PlanJSON(items ...PlanItem) string {
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(raw)
}

// PlanReply 带说明文字与代码块的规划器输出
func PlanReply(items ...PlanItem) string {
	return fmt.Sprintf("Here is the plan:\n```json\n%s\n```", PlanJSON(items...))
}

// TwoStepPlan CodeEngineer 先取数，Summarizer 再总结
func TwoStepPlan() string {
	return PlanReply(
		PlanItem{SerialNumber: "1", Agent: CodeEngineer, Content: "load the sales data", Rely: ""},
		PlanItem{SerialNumber: "2", Agent: Summarizer, Content: "summarize the findings", Rely: "1"},
	)
}

// TwoArrays 含两个顶层 JSON 数组，规划器应拒绝
func TwoArrays() string {
	one := PlanJSON(PlanItem{SerialNumber: 1, Agent: CodeEngineer, Content: "a"})
	two := PlanJSON(PlanItem{SerialNumber: 2, Agent: Summarizer, Content: "b"})
	return strings.Join([]string{one, two}, "\n\n")
}

// NoJSON 不含任何 JSON 的输出
func NoJSON() string {
	return "I am not sure how to split this goal into tasks."
}

// ToolCallJSON 工具动作的输入
func ToolCallJSON(tool string, args map[string]any) string {
	raw, err := json.Marshal(map[string]any{"tool_name": tool, "args": args, "thought": "use " + tool})
	if err != nil {
		panic(err)
	}
	return string(raw)
}
