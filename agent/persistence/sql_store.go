package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// Transactor 在事务中执行写操作，实现方可以对瞬时冲突整体重放
type Transactor interface {
	Transact(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// gormTransactor 单次尝试的 GORM 事务
type gormTransactor struct{ db *gorm.DB }

func (g gormTransactor) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

// SQLPlans GptsPlansMemory 的 GORM 实现
type SQLPlans struct {
	db *gorm.DB
	tx Transactor
}

var _ memory.GptsPlansMemory = (*SQLPlans)(nil)
var _ memory.PlanReplacer = (*SQLPlans)(nil)
var _ memory.Expirer = (*SQLPlans)(nil)

// SQLPlansOption 配置 SQLPlans
type SQLPlansOption func(*SQLPlans)

// UseTransactor 多行写入改由 t 执行，通常传入 *database.PoolManager 以获得冲突重放
func UseTransactor(t Transactor) SQLPlansOption {
	return func(s *SQLPlans) {
		if t != nil {
			s.tx = t
		}
	}
}

// NewSQLPlans 创建 SQL 计划存储，表结构由迁移或 AutoMigrate 提供
func NewSQLPlans(db *gorm.DB, opts ...SQLPlansOption) *SQLPlans {
	s := &SQLPlans{db: db, tx: gormTransactor{db: db}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func stampRows(plans []*types.GptsPlan) []*planRow {
	rows := make([]*planRow, 0, len(plans))
	now := time.Now().UTC()
	for _, p := range plans {
		row := planToRow(p)
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		rows = append(rows, row)
	}
	return rows
}

// BatchSave implements memory.GptsPlansMemory.
func (s *SQLPlans) BatchSave(ctx context.Context, plans []*types.GptsPlan) error {
	if len(plans) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		if p == nil || p.ConvID == "" || p.SubTaskID == "" {
			return fmt.Errorf("%w: plan requires conv_id and sub_task_id", memory.ErrInvalidInput)
		}
		key := p.ConvID + "/" + p.SubTaskID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate sub_task_id %s", memory.ErrInvalidInput, p.SubTaskID)
		}
		seen[key] = struct{}{}
	}
	rows := stampRows(plans)

	return s.tx.Transact(ctx, func(tx *gorm.DB) error {
		for _, row := range rows {
			var count int64
			if err := tx.Model(&planRow{}).
				Where("conv_id = ? AND sub_task_id = ?", row.ConvID, row.SubTaskID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: sub_task_id %s already exists", memory.ErrInvalidInput, row.SubTaskID)
			}
		}
		return tx.Create(&rows).Error
	})
}

// ReplacePlans implements memory.PlanReplacer. 删除与插入在同一事务内完成。
func (s *SQLPlans) ReplacePlans(ctx context.Context, convID string, plans []*types.GptsPlan) error {
	if err := memory.ValidateReplacement(convID, plans); err != nil {
		return err
	}
	rows := stampRows(plans)
	return s.tx.Transact(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("conv_id = ?", convID).Delete(&planRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// GetByConvID implements memory.GptsPlansMemory.
func (s *SQLPlans) GetByConvID(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.find(s.db.WithContext(ctx).Where("conv_id = ?", convID))
}

// GetTodoPlans implements memory.GptsPlansMemory.
func (s *SQLPlans) GetTodoPlans(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.find(s.db.WithContext(ctx).
		Where("conv_id = ? AND state IN ?", convID, []string{string(types.PlanStateTodo), string(types.PlanStateRetrying)}))
}

func (s *SQLPlans) find(q *gorm.DB) ([]*types.GptsPlan, error) {
	var rows []planRow
	if err := q.Order("sub_task_num ASC").Order("sub_task_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.GptsPlan, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toPlan())
	}
	return out, nil
}

// GetByConvIDAndNum implements memory.GptsPlansMemory.
func (s *SQLPlans) GetByConvIDAndNum(ctx context.Context, convID string, taskIDs []string) ([]*types.GptsPlan, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var rows []planRow
	if err := s.db.WithContext(ctx).
		Where("conv_id = ? AND sub_task_id IN ?", convID, taskIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*planRow, len(rows))
	for i := range rows {
		byID[rows[i].SubTaskID] = &rows[i]
	}
	out := make([]*types.GptsPlan, 0, len(taskIDs))
	for _, id := range taskIDs {
		if r, ok := byID[id]; ok {
			out = append(out, r.toPlan())
		}
	}
	return out, nil
}

// CompleteTask implements memory.GptsPlansMemory.
func (s *SQLPlans) CompleteTask(ctx context.Context, convID, taskID, result string) error {
	state := types.PlanStateComplete
	return s.UpdateTask(ctx, convID, taskID, types.PlanUpdate{State: &state, Result: &result})
}

// UpdateTask implements memory.GptsPlansMemory. 单条 UPDATE 语句完成修改。
func (s *SQLPlans) UpdateTask(ctx context.Context, convID, taskID string, update types.PlanUpdate) error {
	values := map[string]any{"updated_at": time.Now().UTC()}
	if update.State != nil {
		values["state"] = string(*update.State)
	}
	if update.RetryTimes != nil {
		values["retry_times"] = *update.RetryTimes
	}
	if update.Result != nil {
		values["result"] = *update.Result
	}
	if update.AgentModel != nil {
		values["agent_model"] = *update.AgentModel
	}

	res := s.db.WithContext(ctx).Model(&planRow{}).
		Where("conv_id = ? AND sub_task_id = ?", convID, taskID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", memory.ErrPlanNotFound, convID, taskID)
	}
	return nil
}

// RemoveByConvID implements memory.GptsPlansMemory.
func (s *SQLPlans) RemoveByConvID(ctx context.Context, convID string) error {
	return s.db.WithContext(ctx).Where("conv_id = ?", convID).Delete(&planRow{}).Error
}

// ExpireBefore implements memory.Expirer.
func (s *SQLPlans) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return expireGroups(ctx, s.db, &planRow{}, "updated_at", cutoff)
}

// SQLMessages GptsMessageMemory 的 GORM 实现
type SQLMessages struct {
	db *gorm.DB
}

var _ memory.GptsMessageMemory = (*SQLMessages)(nil)
var _ memory.Expirer = (*SQLMessages)(nil)

// NewSQLMessages 创建 SQL 消息存储
func NewSQLMessages(db *gorm.DB) *SQLMessages {
	return &SQLMessages{db: db}
}

// Append implements memory.GptsMessageMemory.
func (s *SQLMessages) Append(ctx context.Context, msg *types.AgentMessage) error {
	if msg == nil || msg.ConvID == "" {
		return fmt.Errorf("%w: message requires conv_id", memory.ErrInvalidInput)
	}
	row, err := messageToRow(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return s.db.WithContext(ctx).Create(row).Error
}

// GetByConvID implements memory.GptsMessageMemory.
func (s *SQLMessages) GetByConvID(ctx context.Context, convID string) ([]*types.AgentMessage, error) {
	return s.find(s.db.WithContext(ctx).Where("conv_id = ?", convID))
}

// GetBetweenAgents implements memory.GptsMessageMemory.
func (s *SQLMessages) GetBetweenAgents(ctx context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error) {
	q := s.db.WithContext(ctx).
		Where("conv_id = ?", convID).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", agent1, agent2, agent2, agent1)
	if goal != "" {
		q = q.Where("current_goal = ?", goal)
	}
	return s.find(q)
}

func (s *SQLMessages) find(q *gorm.DB) ([]*types.AgentMessage, error) {
	var rows []messageRow
	if err := q.Order("rounds ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.AgentMessage, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", rows[i].MessageID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// GetLastMessage implements memory.GptsMessageMemory.
func (s *SQLMessages) GetLastMessage(ctx context.Context, convID string) (*types.AgentMessage, error) {
	var row messageRow
	err := s.db.WithContext(ctx).Where("conv_id = ?", convID).Order("rounds DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toMessage()
}

// ExpireBefore implements memory.Expirer.
func (s *SQLMessages) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return expireGroups(ctx, s.db, &messageRow{}, "created_at", cutoff)
}

// expireGroups 删除最后活跃时间早于 cutoff 的会话
func expireGroups(ctx context.Context, db *gorm.DB, model any, column string, cutoff time.Time) (int, error) {
	var convIDs []string
	err := db.WithContext(ctx).Model(model).
		Group("conv_id").
		Having("MAX("+column+") < ?", cutoff.UTC()).
		Pluck("conv_id", &convIDs).Error
	if err != nil {
		return 0, err
	}
	if len(convIDs) == 0 {
		return 0, nil
	}
	if err := db.WithContext(ctx).Where("conv_id IN ?", convIDs).Delete(model).Error; err != nil {
		return 0, err
	}
	return len(convIDs), nil
}
