package types

import (
	"strings"
	"time"
)

// PlanState 子任务状态
type PlanState string

const (
	PlanStateTodo     PlanState = "TODO"
	PlanStateRunning  PlanState = "RUNNING"
	PlanStateRetrying PlanState = "RETRYING"
	PlanStateFailed   PlanState = "FAILED"
	PlanStateComplete PlanState = "COMPLETE"
)

// IsTerminal 是否为终止状态
func (s PlanState) IsTerminal() bool {
	return s == PlanStateFailed || s == PlanStateComplete
}

// IsPending 是否仍待执行
func (s PlanState) IsPending() bool {
	return s == PlanStateTodo || s == PlanStateRetrying
}

// Valid 是否为已知状态
func (s PlanState) Valid() bool {
	switch s {
	case PlanStateTodo, PlanStateRunning, PlanStateRetrying, PlanStateFailed, PlanStateComplete:
		return true
	}
	return false
}

// GptsPlan 会话计划 DAG 的一个节点。Rely 为逗号分隔的前置任务 id。
type GptsPlan struct {
	ConvID         string    `json:"conv_id"`
	SubTaskNum     int       `json:"sub_task_num"`
	SubTaskID      string    `json:"sub_task_id"`
	SubTaskTitle   string    `json:"sub_task_title"`
	SubTaskContent string    `json:"sub_task_content"`
	SubTaskAgent   string    `json:"sub_task_agent"`
	Rely           string    `json:"rely"`
	AgentModel     string    `json:"agent_model,omitempty"`
	State          PlanState `json:"state"`
	RetryTimes     int       `json:"retry_times"`
	MaxRetryTimes  int       `json:"max_retry_times"`
	Result         string    `json:"result,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RelyIDs 解析 Rely 字段
func (p *GptsPlan) RelyIDs() []string {
	return SplitRely(p.Rely)
}

// OverBudget 重试次数是否超出上限
func (p *GptsPlan) OverBudget() bool {
	return p.RetryTimes > p.MaxRetryTimes
}

// Clone 拷贝任务
func (p *GptsPlan) Clone() *GptsPlan {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// SplitRely 将 "1, 2" 拆分为 ["1","2"]，忽略空项
func SplitRely(rely string) []string {
	if strings.TrimSpace(rely) == "" {
		return nil
	}
	parts := strings.Split(rely, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// JoinRely 与 SplitRely 相反
func JoinRely(ids []string) string {
	return strings.Join(ids, ",")
}

// PlanUpdate 描述对单个任务的原子修改，nil 字段不修改
type PlanUpdate struct {
	State      *PlanState
	RetryTimes *int
	Result     *string
	AgentModel *string
}

// Apply 把修改写入任务
func (u PlanUpdate) Apply(p *GptsPlan) {
	if u.State != nil {
		p.State = *u.State
	}
	if u.RetryTimes != nil {
		p.RetryTimes = *u.RetryTimes
	}
	if u.Result != nil {
		p.Result = *u.Result
	}
	if u.AgentModel != nil {
		p.AgentModel = *u.AgentModel
	}
}
