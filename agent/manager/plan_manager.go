package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/vis"
	"github.com/BaSui01/agentteam/types"
)

// PlanManagerName 计划管理者的默认名字
const PlanManagerName = "PlanManager"

// PlanChatManager 先让规划器生成计划，再按依赖顺序把任务分派给团队成员
type PlanChatManager struct {
	*agent.ConversableAgent

	planner  agent.Agent
	speakers *SpeakerSelector
	memory   *memory.GptsMemory
	maxRound int
	logger   *zap.Logger
}

// NewPlanChatManager 创建管理者。管理者不做自我纠错，MaxRetryCount 固定为 0。
func NewPlanChatManager(cfg agent.Config, deps agent.Deps, planner agent.Agent, team []agent.Agent, choose ChooseFunc) (*PlanChatManager, error) {
	if planner == nil {
		return nil, ErrNoPlanner
	}
	if len(team) == 0 {
		return nil, ErrEmptyTeam
	}
	if cfg.Profile.Name == "" {
		cfg.Profile.Name = PlanManagerName
	}
	if cfg.Profile.Goal == "" {
		cfg.Profile.Goal = "Coordinate the team to complete the plan."
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &PlanChatManager{
		planner:  planner,
		speakers: NewSpeakerSelector(team, choose, logger),
		memory:   deps.Memory,
		maxRound: deps.AgentContext.WithDefaults().MaxChatRound,
		logger:   logger.With(zap.String("agent", cfg.Profile.Name)),
	}
	cfg.MaxRetryCount = 0
	cfg.Hooks.Thinking = passThrough
	cfg.Hooks.Act = m.drive

	base, err := agent.NewConversableAgent(cfg, deps)
	if err != nil {
		return nil, err
	}
	m.ConversableAgent = base
	return m, nil
}

// Planner 返回规划器
func (m *PlanChatManager) Planner() agent.Agent { return m.planner }

// Team 返回团队成员
func (m *PlanChatManager) Team() []agent.Agent { return m.speakers.Agents() }

// passThrough 管理者不调用模型，直接把收到的内容作为思考结果
func passThrough(_ context.Context, _ []types.Message, received *types.AgentMessage) (string, string, error) {
	return received.Content, "", nil
}

// drive 驱动计划执行，每轮至多分派一个任务
func (m *PlanChatManager) drive(ctx context.Context, received *types.AgentMessage, _ string, _ agent.Agent) (*types.ActionOutput, error) {
	convID := received.ConvID
	goal := received.CurrentGoal
	if goal == "" {
		goal = received.Content
	}
	log := m.logger.With(zap.String("conv_id", convID))
	lastSpeaker := ""

	for round := 0; round < m.maxRound; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plans, err := m.memory.Plans(ctx, convID)
		if err != nil {
			return nil, fmt.Errorf("load plans: %w", err)
		}

		if len(plans) == 0 {
			log.Info("no plan yet, asking planner", zap.String("planner", m.planner.Name()))
			reply, err := m.Send(ctx, &types.AgentMessage{
				Role:        types.MessageRoleHuman,
				Content:     goal,
				CurrentGoal: goal,
				Context:     received.Context,
			}, m.planner, agent.SendOptions{RequestReply: true})
			if err != nil {
				return nil, fmt.Errorf("planning: %w", err)
			}
			if !reply.Success {
				return m.report(ctx, convID, fmt.Sprintf("Planning failed: %s", reply.Content)), nil
			}
			continue
		}

		byID := make(map[string]*types.GptsPlan, len(plans))
		for _, p := range plans {
			byID[p.SubTaskID] = p
		}

		// RUNNING 只会出现在被中断的运行之后，重新分派
		var pending []*types.GptsPlan
		for _, p := range plans {
			if p.State.IsPending() || p.State == types.PlanStateRunning {
				pending = append(pending, p)
			}
		}
		if len(pending) == 0 {
			return m.complete(ctx, plans)
		}

		for _, p := range pending {
			for _, dep := range p.RelyIDs() {
				if d, ok := byID[dep]; ok && d.State == types.PlanStateFailed {
					return m.report(ctx, convID, fmt.Sprintf(
						"Task %s cannot run because task %s it depends on failed: %s", p.SubTaskID, dep, d.Result)), nil
				}
			}
		}

		task := readyTask(pending, byID)
		if task == nil {
			return m.report(ctx, convID, "No task can be executed: every pending task waits on an unfinished dependency."), nil
		}

		content := task.SubTaskContent
		if task.State == types.PlanStateRetrying {
			if task.OverBudget() {
				if err := m.setState(ctx, convID, task.SubTaskID, types.PlanStateFailed); err != nil {
					return nil, err
				}
				return m.report(ctx, convID, fmt.Sprintf(
					"Task %s still failed after %d retries: %s", task.SubTaskID, task.MaxRetryTimes, task.Result)), nil
			}
			content = fmt.Sprintf("%s\n\nThe previous attempt failed: %s\nPlease correct it and try again.", content, task.Result)
		}

		speaker, err := m.speakers.Select(ctx, task, lastSpeaker)
		if err != nil {
			return nil, err
		}
		rely, err := m.relyMessages(ctx, convID, task)
		if err != nil {
			return nil, err
		}
		if err := m.setState(ctx, convID, task.SubTaskID, types.PlanStateRunning); err != nil {
			return nil, err
		}

		log.Info("dispatch task",
			zap.String("task", task.SubTaskID),
			zap.String("speaker", speaker.Name()),
			zap.Int("retry_times", task.RetryTimes))

		reply, err := m.Send(ctx, &types.AgentMessage{
			Role:        types.MessageRoleHuman,
			Content:     content,
			CurrentGoal: fmt.Sprintf("[%s]%s", task.SubTaskTitle, task.SubTaskContent),
			Context:     received.Context,
		}, speaker, agent.SendOptions{RequestReply: true, RelyMessages: rely})
		lastSpeaker = speaker.Name()

		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			log.Warn("task dispatch failed", zap.String("task", task.SubTaskID), zap.Error(err))
			state, result := types.PlanStateFailed, err.Error()
			if uerr := m.memory.UpdateTask(ctx, convID, task.SubTaskID, types.PlanUpdate{State: &state, Result: &result}); uerr != nil {
				return nil, uerr
			}
			return m.report(ctx, convID, fmt.Sprintf("Task %s failed: %s raised an error: %v", task.SubTaskID, speaker.Name(), err)), nil
		}

		if reply.ModelName != "" {
			model := reply.ModelName
			if err := m.memory.UpdateTask(ctx, convID, task.SubTaskID, types.PlanUpdate{AgentModel: &model}); err != nil {
				return nil, err
			}
		}
		if reply.Success {
			if err := m.memory.CompleteTask(ctx, convID, task.SubTaskID, reply.ReportContent()); err != nil {
				return nil, err
			}
			continue
		}

		state, retries, result := types.PlanStateRetrying, task.RetryTimes+1, reply.Content
		if err := m.memory.UpdateTask(ctx, convID, task.SubTaskID, types.PlanUpdate{
			State: &state, RetryTimes: &retries, Result: &result,
		}); err != nil {
			return nil, err
		}
	}

	return m.report(ctx, convID, fmt.Sprintf("The conversation exceeded maximum rounds (%d).", m.maxRound)), nil
}

// readyTask SubTaskNum 最小且依赖全部完成的待执行任务
func readyTask(pending []*types.GptsPlan, byID map[string]*types.GptsPlan) *types.GptsPlan {
	for _, p := range pending {
		ready := true
		for _, dep := range p.RelyIDs() {
			if d, ok := byID[dep]; !ok || d.State != types.PlanStateComplete {
				ready = false
				break
			}
		}
		if ready {
			return p
		}
	}
	return nil
}

// relyMessages 每个前置任务生成一对消息：任务内容（human）与结果（ai）
func (m *PlanChatManager) relyMessages(ctx context.Context, convID string, task *types.GptsPlan) ([]*types.AgentMessage, error) {
	ids := task.RelyIDs()
	if len(ids) == 0 {
		return nil, nil
	}
	deps, err := m.memory.PlansByIDs(ctx, convID, ids)
	if err != nil {
		return nil, fmt.Errorf("load dependencies of task %s: %w", task.SubTaskID, err)
	}
	out := make([]*types.AgentMessage, 0, 2*len(deps))
	for _, d := range deps {
		out = append(out,
			&types.AgentMessage{ConvID: convID, Sender: m.Name(), Role: types.MessageRoleHuman, Content: d.SubTaskContent},
			&types.AgentMessage{ConvID: convID, Sender: d.SubTaskAgent, Role: types.MessageRoleAI, Content: d.Result},
		)
	}
	return out, nil
}

func (m *PlanChatManager) setState(ctx context.Context, convID, taskID string, state types.PlanState) error {
	return m.memory.UpdateTask(ctx, convID, taskID, types.PlanUpdate{State: &state})
}

// complete 全部任务完成，结果为计划顺序中最后一个任务的结果
func (m *PlanChatManager) complete(ctx context.Context, plans []*types.GptsPlan) (*types.ActionOutput, error) {
	last := plans[len(plans)-1]
	out := types.NewSuccessOutput(last.Result)
	out.View = planView(ctx, plans)
	m.logger.Info("plan completed", zap.String("conv_id", last.ConvID), zap.Int("tasks", len(plans)))
	return out, nil
}

// report 失败报告，附带当前计划视图
func (m *PlanChatManager) report(ctx context.Context, convID, reason string) *types.ActionOutput {
	m.logger.Warn("plan stopped", zap.String("conv_id", convID), zap.String("reason", reason))
	out := types.NewFailedOutput(reason)
	if plans, err := m.memory.Plans(ctx, convID); err == nil {
		out.View = planView(ctx, plans)
	}
	return out
}

func planView(ctx context.Context, plans []*types.GptsPlan) string {
	view, err := (vis.PlanVis{}).Display(ctx, plans)
	if err != nil {
		return ""
	}
	return view
}
