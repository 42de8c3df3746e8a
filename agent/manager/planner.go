package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/action"
	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/agent/vis"
	"github.com/BaSui01/agentteam/types"
)

// PlannerName 规划器的默认名字
const PlannerName = "Planner"

var planSchema = []byte(`{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "properties": {
      "serial_number": {"type": ["string", "number"]},
      "agent": {"type": "string", "minLength": 1},
      "content": {"type": "string"},
      "title": {"type": "string"},
      "rely": {"type": ["string", "number", "array", "null"]}
    },
    "required": ["serial_number", "agent", "content"]
  }
}`)

var compiledPlanSchema = action.MustCompileSchema(planSchema)

// flexID 接受字符串或整数
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// flexRely 接受 "1,2"、[1,"2"]、3 或 null
type flexRely []string

func (f *flexRely) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = nil
	case len(b) > 0 && b[0] == '[':
		var ids []flexID
		if err := json.Unmarshal(b, &ids); err != nil {
			return err
		}
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				out = append(out, string(id))
			}
		}
		*f = out
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = types.SplitRely(s)
	default:
		var id flexID
		if err := id.UnmarshalJSON(b); err != nil {
			return err
		}
		*f = []string{string(id)}
	}
	return nil
}

// PlanInput 规划器输出中的一个任务
type PlanInput struct {
	SerialNumber flexID   `json:"serial_number"`
	Agent        string   `json:"agent"`
	Content      string   `json:"content"`
	Title        string   `json:"title,omitempty"`
	Rely         flexRely `json:"rely"`
}

// PlanAction 解析规划器输出并替换会话计划
type PlanAction struct {
	memory *memory.GptsMemory
	roster []string
}

var _ action.Action = (*PlanAction)(nil)

// NewPlanAction 创建动作，roster 为可分配任务的成员名字
func NewPlanAction(mem *memory.GptsMemory, roster []string) *PlanAction {
	return &PlanAction{memory: mem, roster: append([]string(nil), roster...)}
}

func (a *PlanAction) Name() string                { return "plan" }
func (a *PlanAction) ResourceNeed() resource.Type { return "" }
func (a *PlanAction) InputSchema() []byte         { return planSchema }

// Run 恰好一个顶层 JSON 数组才会落库；任何问题都返回给规划器用于自我纠错
func (a *PlanAction) Run(ctx context.Context, aiMessage string, _ resource.Resource, _ *types.ActionOutput, opts action.RunOptions) *types.ActionOutput {
	blocks := action.FindJSONBlocks(aiMessage)
	switch {
	case len(blocks) == 0:
		return types.NewFailedOutput("No JSON plan found. Please return the plan as exactly one JSON array of tasks.")
	case len(blocks) > 1:
		return types.NewFailedOutput(fmt.Sprintf(
			"Found %d JSON values in the answer. Please merge them and return exactly one JSON array of tasks.", len(blocks)))
	}
	if !strings.HasPrefix(strings.TrimSpace(blocks[0]), "[") {
		return types.NewFailedOutput("The plan must be a JSON array of tasks, not a single object.")
	}

	var items []PlanInput
	if err := action.DecodeBlock(blocks[0], compiledPlanSchema, &items); err != nil {
		return types.NewFailedOutput(fmt.Sprintf("The plan is not well formed: %s", action.Truncate(err.Error(), 500)))
	}

	plans, reason := a.buildPlans(opts, items)
	if reason != "" {
		return types.NewFailedOutput(reason)
	}
	if err := a.memory.SavePlans(ctx, opts.ConvID, plans); err != nil {
		return types.NewFailedOutput(fmt.Sprintf("Failed to save the plan: %v", err))
	}

	canonical, err := json.Marshal(items)
	if err != nil {
		return types.NewFailedOutput(err.Error())
	}
	out := types.NewSuccessOutput(string(canonical))
	if view, err := (vis.PlanVis{}).Display(ctx, plans); err == nil {
		out.View = view
	}
	return out
}

// buildPlans 校验任务并转换为计划行，reason 非空表示需要规划器修正
func (a *PlanAction) buildPlans(opts action.RunOptions, items []PlanInput) (plans []*types.GptsPlan, reason string) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		id := string(it.SerialNumber)
		switch {
		case id == "":
			return nil, fmt.Sprintf("Task %d has an empty serial_number.", i+1)
		case seen[id]:
			return nil, fmt.Sprintf("Duplicate serial_number %q. Every task needs a unique serial_number.", id)
		case strings.TrimSpace(it.Content) == "":
			return nil, fmt.Sprintf("Task %s has empty content.", id)
		case !a.inRoster(it.Agent):
			return nil, fmt.Sprintf("Task %s is assigned to %q, which is not in the team. Available agents: %s.",
				id, it.Agent, strings.Join(a.roster, ", "))
		}
		seen[id] = true
		ids = append(ids, id)
	}

	g, err := NewGraph(ids...)
	if err != nil {
		return nil, err.Error()
	}
	for _, it := range items {
		for _, dep := range it.Rely {
			if dep == string(it.SerialNumber) {
				return nil, fmt.Sprintf("Task %s depends on itself.", dep)
			}
			if !seen[dep] {
				return nil, fmt.Sprintf("Task %s relies on unknown task %q.", it.SerialNumber, dep)
			}
			if err := g.AddEdge(dep, string(it.SerialNumber)); err != nil {
				return nil, err.Error()
			}
		}
	}
	if _, err := g.TopoSort(); err != nil {
		return nil, fmt.Sprintf("The task dependencies contain a cycle (%v). Please remove it.", err)
	}

	maxRetry := opts.AgentContext.MaxRetryRound
	plans = make([]*types.GptsPlan, 0, len(items))
	for i, it := range items {
		title := it.Title
		if title == "" {
			title = it.Content
		}
		plans = append(plans, &types.GptsPlan{
			ConvID:         opts.ConvID,
			SubTaskNum:     i + 1,
			SubTaskID:      string(it.SerialNumber),
			SubTaskTitle:   title,
			SubTaskContent: it.Content,
			SubTaskAgent:   it.Agent,
			Rely:           types.JoinRely(it.Rely),
			State:          types.PlanStateTodo,
			MaxRetryTimes:  maxRetry,
		})
	}
	return plans, ""
}

func (a *PlanAction) inRoster(name string) bool {
	if len(a.roster) == 0 {
		return true
	}
	for _, r := range a.roster {
		if r == name {
			return true
		}
	}
	return false
}

// PlannerPrompt 规划器系统提示词中的团队与格式说明
func PlannerPrompt(team []agent.Agent) string {
	var b strings.Builder
	b.WriteString("Split the user's goal into sub tasks that the following agents can complete:\n")
	for _, a := range team {
		fmt.Fprintf(&b, "- %s\n", a.Profile().Describe())
	}
	b.WriteString(`
Rules:
1. Assign every task to exactly one agent from the list above, using its exact name.
2. Keep the number of tasks small. Merge consecutive steps handled by the same agent.
3. "rely" lists the serial numbers of tasks whose results this task needs, separated by commas.
4. Return exactly one JSON array and nothing else that looks like JSON, for example:
[{"serial_number": "1", "agent": "<agent name>", "content": "<task>", "rely": ""},
 {"serial_number": "2", "agent": "<agent name>", "content": "<task>", "rely": "1"}]`)
	return b.String()
}

// NewPlannerAgent 创建规划器，team 为可分配任务的成员
func NewPlannerAgent(cfg agent.Config, deps agent.Deps, team []agent.Agent) (*agent.ConversableAgent, error) {
	if cfg.Profile.Name == "" {
		cfg.Profile.Name = PlannerName
	}
	if cfg.Profile.Role == "" {
		cfg.Profile.Role = PlannerName
	}
	if cfg.Profile.Goal == "" {
		cfg.Profile.Goal = "Understand the goal and break it down into sub tasks for the team."
	}
	if deps.Memory == nil {
		return nil, agent.ErrNoMemory
	}

	names := make([]string, 0, len(team))
	for _, a := range team {
		names = append(names, a.Name())
	}
	cfg.Actions = []action.Action{NewPlanAction(deps.Memory, names)}

	profile, resources, language := cfg.Profile, cfg.Resources, deps.AgentContext.WithDefaults().Language
	cfg.Hooks.SystemPrompt = func(ctx context.Context) (string, error) {
		base, err := agent.BuildSystemPrompt(ctx, profile, resources, language)
		if err != nil {
			return "", err
		}
		return base + "\n\n" + PlannerPrompt(team), nil
	}
	return agent.NewConversableAgent(cfg, deps)
}
