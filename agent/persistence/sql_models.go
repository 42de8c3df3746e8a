package persistence

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentteam/types"
)

// planRow gpts_plans 表
type planRow struct {
	ID             uint      `gorm:"primaryKey"`
	ConvID         string    `gorm:"column:conv_id;size:255;not null;uniqueIndex:uk_gpts_plans_conv_task,priority:1"`
	SubTaskNum     int       `gorm:"column:sub_task_num;not null"`
	SubTaskID      string    `gorm:"column:sub_task_id;size:64;not null;uniqueIndex:uk_gpts_plans_conv_task,priority:2"`
	SubTaskTitle   string    `gorm:"column:sub_task_title;type:text"`
	SubTaskContent string    `gorm:"column:sub_task_content;type:text"`
	SubTaskAgent   string    `gorm:"column:sub_task_agent;size:255"`
	Rely           string    `gorm:"column:rely;size:255"`
	AgentModel     string    `gorm:"column:agent_model;size:255"`
	State          string    `gorm:"column:state;size:32;not null;index:idx_gpts_plans_state"`
	RetryTimes     int       `gorm:"column:retry_times;not null;default:0"`
	MaxRetryTimes  int       `gorm:"column:max_retry_times;not null;default:0"`
	Result         string    `gorm:"column:result;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (planRow) TableName() string { return plansTable }

func planToRow(p *types.GptsPlan) *planRow {
	return &planRow{
		ConvID:         p.ConvID,
		SubTaskNum:     p.SubTaskNum,
		SubTaskID:      p.SubTaskID,
		SubTaskTitle:   p.SubTaskTitle,
		SubTaskContent: p.SubTaskContent,
		SubTaskAgent:   p.SubTaskAgent,
		Rely:           p.Rely,
		AgentModel:     p.AgentModel,
		State:          string(p.State),
		RetryTimes:     p.RetryTimes,
		MaxRetryTimes:  p.MaxRetryTimes,
		Result:         p.Result,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (r *planRow) toPlan() *types.GptsPlan {
	return &types.GptsPlan{
		ConvID:         r.ConvID,
		SubTaskNum:     r.SubTaskNum,
		SubTaskID:      r.SubTaskID,
		SubTaskTitle:   r.SubTaskTitle,
		SubTaskContent: r.SubTaskContent,
		SubTaskAgent:   r.SubTaskAgent,
		Rely:           r.Rely,
		AgentModel:     r.AgentModel,
		State:          types.PlanState(r.State),
		RetryTimes:     r.RetryTimes,
		MaxRetryTimes:  r.MaxRetryTimes,
		Result:         r.Result,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// messageRow gpts_messages 表，嵌套结构以 JSON 文本保存
type messageRow struct {
	ID            uint      `gorm:"primaryKey"`
	MessageID     string    `gorm:"column:message_id;size:64;not null;uniqueIndex:uk_gpts_messages_id"`
	ConvID        string    `gorm:"column:conv_id;size:255;not null;uniqueIndex:uk_gpts_messages_conv_rounds,priority:1"`
	Rounds        int       `gorm:"column:rounds;not null;uniqueIndex:uk_gpts_messages_conv_rounds,priority:2"`
	Sender        string    `gorm:"column:sender;size:255;index:idx_gpts_messages_pair,priority:1"`
	Receiver      string    `gorm:"column:receiver;size:255;index:idx_gpts_messages_pair,priority:2"`
	Role          string    `gorm:"column:role;size:32"`
	Content       string    `gorm:"column:content;type:text"`
	CurrentGoal   string    `gorm:"column:current_goal;type:text"`
	Context       string    `gorm:"column:context;type:text"`
	ReviewInfo    string    `gorm:"column:review_info;type:text"`
	ActionReport  string    `gorm:"column:action_report;type:text"`
	ModelName     string    `gorm:"column:model_name;size:255"`
	Success       bool      `gorm:"column:success"`
	IsTermination bool      `gorm:"column:is_termination"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (messageRow) TableName() string { return messagesTable }

func messageToRow(m *types.AgentMessage) (*messageRow, error) {
	row := &messageRow{
		MessageID:     m.MessageID,
		ConvID:        m.ConvID,
		Rounds:        m.Rounds,
		Sender:        m.Sender,
		Receiver:      m.Receiver,
		Role:          string(m.Role),
		Content:       m.Content,
		CurrentGoal:   m.CurrentGoal,
		ModelName:     m.ModelName,
		Success:       m.Success,
		IsTermination: m.IsTermination,
		CreatedAt:     m.CreatedAt,
	}
	var err error
	if row.Context, err = jsonText(m.Context, len(m.Context) > 0); err != nil {
		return nil, err
	}
	if row.ReviewInfo, err = jsonText(m.ReviewInfo, m.ReviewInfo != nil); err != nil {
		return nil, err
	}
	if row.ActionReport, err = jsonText(m.ActionReport, m.ActionReport != nil); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *messageRow) toMessage() (*types.AgentMessage, error) {
	m := &types.AgentMessage{
		MessageID:     r.MessageID,
		ConvID:        r.ConvID,
		Rounds:        r.Rounds,
		Sender:        r.Sender,
		Receiver:      r.Receiver,
		Role:          types.MessageRole(r.Role),
		Content:       r.Content,
		CurrentGoal:   r.CurrentGoal,
		ModelName:     r.ModelName,
		Success:       r.Success,
		IsTermination: r.IsTermination,
		CreatedAt:     r.CreatedAt,
	}
	if r.Context != "" {
		if err := json.Unmarshal([]byte(r.Context), &m.Context); err != nil {
			return nil, err
		}
	}
	if r.ReviewInfo != "" {
		m.ReviewInfo = &types.ReviewInfo{}
		if err := json.Unmarshal([]byte(r.ReviewInfo), m.ReviewInfo); err != nil {
			return nil, err
		}
	}
	if r.ActionReport != "" {
		m.ActionReport = &types.ActionOutput{}
		if err := json.Unmarshal([]byte(r.ActionReport), m.ActionReport); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func jsonText(v any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AutoMigrate 用 GORM 创建 gpts_plans / gpts_messages
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&planRow{}, &messageRow{})
}
