// Package fixtures 提供团队配置、计划与模型输出样例，用于测试。
package fixtures

import (
	"fmt"

	"github.com/BaSui01/agentteam/config"
	"github.com/BaSui01/agentteam/types"
)

// 常用智能体名字
const (
	CodeEngineer   = "CodeEngineer"
	DataScientist  = "DataScientist"
	Summarizer     = "Summarizer"
	Planner        = "Planner"
	DefaultConvID  = "conv-test-001"
	DefaultGoalMsg = "Analyze the sales data and write a summary report"
)

// AutoPlanTeam 返回 auto_plan 团队配置
func AutoPlanTeam() config.TeamConfig {
	return config.TeamConfig{
		Name:        "analysts",
		Description: "plans and executes data analysis tasks",
		Mode:        string(types.TeamModeAutoPlan),
		Agents: []config.AgentConfig{
			{Name: CodeEngineer, Type: "assistant", Role: "Engineer", Goal: "write and run code"},
			{Name: DataScientist, Type: "assistant", Role: "Scientist", Goal: "analyze data"},
			{Name: Summarizer, Type: "assistant", Role: "Writer", Goal: "summarize results"},
		},
	}
}

// SingleAgentTeam 返回 single_agent 团队配置
func SingleAgentTeam() config.TeamConfig {
	return config.TeamConfig{
		Name: "solo",
		Mode: string(types.TeamModeSingleAgent),
		Agents: []config.AgentConfig{
			{Name: CodeEngineer, Type: "assistant", Goal: "write and run code"},
		},
	}
}

// LayoutTeam 返回 awel_layout 团队配置：
// CodeEngineer → DataScientist → Summarizer，CodeEngineer → Summarizer
func LayoutTeam() config.TeamConfig {
	return config.TeamConfig{
		Name: "pipeline",
		Mode: string(types.TeamModeAwelLayout),
		Agents: []config.AgentConfig{
			{Name: CodeEngineer, Type: "assistant"},
			{Name: DataScientist, Type: "assistant"},
			{Name: Summarizer, Type: "assistant"},
		},
		Layout: config.LayoutConfig{Edges: []config.EdgeConfig{
			{From: CodeEngineer, To: DataScientist},
			{From: DataScientist, To: Summarizer},
			{From: CodeEngineer, To: Summarizer},
		}},
	}
}

// Plan 返回一个任务，rely 为逗号分隔的前置任务 id
func Plan(convID string, num int, agent, content, rely string) *types.GptsPlan {
	return &types.GptsPlan{
		ConvID:         convID,
		SubTaskNum:     num,
		SubTaskID:      fmt.Sprint(num),
		SubTaskTitle:   content,
		SubTaskContent: content,
		SubTaskAgent:   agent,
		Rely:           rely,
		State:          types.PlanStateTodo,
		MaxRetryTimes:  types.DefaultMaxRetryRound,
	}
}

// LinearPlans 返回 n 个依次依赖的任务
func LinearPlans(convID string, agents ...string) []*types.GptsPlan {
	plans := make([]*types.GptsPlan, 0, len(agents))
	for i, a := range agents {
		rely := ""
		if i > 0 {
			rely = fmt.Sprint(i)
		}
		plans = append(plans, Plan(convID, i+1, a, fmt.Sprintf("step %d", i+1), rely))
	}
	return plans
}

// HumanMessage 返回用户消息
func HumanMessage(convID, sender, receiver, content string) *types.AgentMessage {
	return &types.AgentMessage{
		ConvID:      convID,
		Sender:      sender,
		Receiver:    receiver,
		Role:        types.MessageRoleHuman,
		Content:     content,
		CurrentGoal: content,
	}
}
