package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/vis"
	"github.com/BaSui01/agentteam/config"
	"github.com/BaSui01/agentteam/internal/metrics"
	"github.com/BaSui01/agentteam/types"
)

// ContextTeamKey 会话首条消息 Context 中记录团队名的键
const ContextTeamKey = "team"

// ChatRequest 发起会话
type ChatRequest struct {
	// ConvID 为空时生成新的会话 id
	ConvID string `json:"conv_id,omitempty"`
	Team   string `json:"team"`
	Goal   string `json:"goal"`
}

// ChatResult 一次会话运行的结果
type ChatResult struct {
	ConvID   string            `json:"conv_id"`
	Team     string            `json:"team"`
	Mode     types.TeamMode    `json:"mode"`
	Success  bool              `json:"success"`
	Content  string            `json:"content"`
	View     string            `json:"view,omitempty"`
	Plans    []*types.GptsPlan `json:"plans,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Snapshot 会话的当前状态
type Snapshot struct {
	ConvID   string                `json:"conv_id"`
	Plans    []*types.GptsPlan     `json:"plans"`
	Messages []*types.AgentMessage `json:"messages"`
}

// TeamInfo 团队概要
type TeamInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Mode        string   `json:"mode"`
	Agents      []string `json:"agents"`
}

// Service 会话服务。Memory 的生命周期归 Service 所有，团队在每次运行时重新组装。
type Service struct {
	teams    map[string]config.TeamConfig
	names    []string
	builder  *Builder
	deps     agent.Deps
	agentCtx types.AgentContext
	memory   *memory.GptsMemory
	metrics  *metrics.Collector
	logger   *zap.Logger
	// 经 OTLP 导出的会话时长，与 prometheus 指标并存
	runDuration metric.Float64Histogram

	runs    singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight 同一会话的一次运行。运行上下文保留首个调用方的值但不继承其取消，
// 全部等待者都离开后才取消。
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewService 创建会话服务
func NewService(teams []config.TeamConfig, builder *Builder, deps agent.Deps) (*Service, error) {
	if builder == nil {
		return nil, fmt.Errorf("%w: builder is nil", agent.ErrInvalidConfig)
	}
	if deps.Memory == nil {
		return nil, agent.ErrNoMemory
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		teams:    make(map[string]config.TeamConfig, len(teams)),
		builder:  builder,
		deps:     deps,
		agentCtx: deps.AgentContext.WithDefaults(),
		memory:   deps.Memory,
		metrics:  deps.Metrics,
		logger:   logger.With(zap.String("component", "team_service")),
		flights:  make(map[string]*flight),
	}
	hist, err := otel.Meter("agentteam/team").Float64Histogram("agentteam.conversation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of a team conversation run"))
	if err != nil {
		return nil, fmt.Errorf("create conversation histogram: %w", err)
	}
	s.runDuration = hist
	for _, tc := range teams {
		if _, dup := s.teams[tc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate team %q", agent.ErrInvalidConfig, tc.Name)
		}
		s.teams[tc.Name] = tc
		s.names = append(s.names, tc.Name)
	}
	return s, nil
}

// Memory 返回会话存储
func (s *Service) Memory() *memory.GptsMemory { return s.memory }

// Teams 按配置顺序返回团队概要
func (s *Service) Teams() []TeamInfo {
	out := make([]TeamInfo, 0, len(s.names))
	for _, n := range s.names {
		tc := s.teams[n]
		mode := tc.Mode
		if mode == "" {
			mode = string(types.TeamModeAutoPlan)
		}
		agents := make([]string, 0, len(tc.Agents))
		for _, a := range tc.Agents {
			agents = append(agents, a.Name)
		}
		out = append(out, TeamInfo{Name: tc.Name, Description: tc.Description, Mode: mode, Agents: agents})
	}
	return out
}

// Chat 发起会话并运行到结束。同一会话同时只有一次运行，并发的相同调用共享结果；
// 某个调用方取消只让它自己返回，所有调用方都取消后运行才中止。
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, types.NewValidationError("goal must not be empty")
	}
	tc, ok := s.teams[req.Team]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTeamNotFound, req.Team)
	}
	convID := req.ConvID
	if convID == "" {
		convID = uuid.NewString()
	}

	return s.do(ctx, convID, func(ctx context.Context) (*ChatResult, error) {
		msgs, err := s.memory.Messages(ctx, convID)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationExists, convID)
		}
		return s.run(ctx, tc, convID, req.Goal)
	})
}

// RetryChat 把失败（以及超出重试预算）的任务重置为 RETRYING，再用原目标继续驱动会话
func (s *Service) RetryChat(ctx context.Context, convID string) (*ChatResult, error) {
	return s.do(ctx, convID, func(ctx context.Context) (*ChatResult, error) {
		msgs, err := s.memory.Messages(ctx, convID)
		if err != nil {
			return nil, err
		}
		opening := openingMessage(msgs)
		if opening == nil {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
		}
		teamName, _ := opening.Context[ContextTeamKey].(string)
		tc, ok := s.teams[teamName]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrTeamNotFound, teamName)
		}

		plans, err := s.memory.Plans(ctx, convID)
		if err != nil {
			return nil, err
		}
		reset, pending := 0, false
		for _, p := range plans {
			switch {
			case p.State == types.PlanStateFailed || (p.State == types.PlanStateRetrying && p.OverBudget()):
				state, zero := types.PlanStateRetrying, 0
				if err := s.memory.UpdateTask(ctx, convID, p.SubTaskID, types.PlanUpdate{State: &state, RetryTimes: &zero}); err != nil {
					return nil, err
				}
				reset++
			case p.State != types.PlanStateComplete:
				pending = true
			}
		}
		if len(plans) > 0 && reset == 0 && !pending {
			return nil, fmt.Errorf("%w: %s", ErrNothingToRetry, convID)
		}

		s.logger.Info("retry conversation",
			zap.String("conv_id", convID),
			zap.String("team", tc.Name),
			zap.Int("reset_tasks", reset))
		return s.run(ctx, tc, convID, opening.CurrentGoal)
	})
}

// do 以会话 id 合并并发运行。调用方取消时立即返回，运行在仍有等待者时继续。
func (s *Service) do(ctx context.Context, convID string, fn func(ctx context.Context) (*ChatResult, error)) (*ChatResult, error) {
	runCtx, leave := s.join(ctx, convID)
	defer leave()

	ch := s.runs.DoChan(convID, func() (any, error) { return fn(runCtx) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			s.logger.Debug("joined running conversation", zap.String("conv_id", convID))
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*ChatResult), nil
	}
}

func (s *Service) join(ctx context.Context, convID string) (context.Context, func()) {
	s.mu.Lock()
	f, ok := s.flights[convID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: runCtx, cancel: cancel}
		s.flights[convID] = f
	}
	f.waiters++
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.leave(convID, f) })
	return f.ctx, func() {
		if stop() {
			s.leave(convID, f)
		}
	}
}

func (s *Service) leave(convID string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[convID] == f {
		delete(s.flights, convID)
	}
}

func (s *Service) run(ctx context.Context, tc config.TeamConfig, convID, goal string) (*ChatResult, error) {
	deps := s.deps
	deps.AgentContext = s.agentCtx
	deps.AgentContext.ConvID = convID

	t, err := s.builder.Build(tc, deps)
	if err != nil {
		return nil, err
	}
	user, err := agent.NewUserProxyAgent(convID, s.memory, s.logger)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("agentteam/team").Start(ctx, "team.run", trace.WithAttributes(
		attribute.String("conv.id", convID),
		attribute.String("team.name", tc.Name),
		attribute.String("team.mode", string(t.Mode)),
	))
	defer span.End()

	start := time.Now()
	last, err := user.Initiate(ctx, t.Entry, &types.AgentMessage{
		Content: goal,
		Context: map[string]any{ContextTeamKey: tc.Name},
	}, nil)
	elapsed := time.Since(start)
	if err != nil {
		status := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "cancelled"
		}
		s.metrics.RecordConversation(string(t.Mode), status)
		s.recordDuration(ctx, tc.Name, t.Mode, status, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		s.logger.Warn("conversation aborted", zap.String("conv_id", convID), zap.Error(err))
		return nil, err
	}

	plans, err := s.memory.Plans(ctx, convID)
	if err != nil {
		return nil, err
	}
	res := &ChatResult{
		ConvID:   convID,
		Team:     tc.Name,
		Mode:     t.Mode,
		Success:  last.Success,
		Content:  last.ReportContent(),
		Plans:    plans,
		Duration: elapsed,
	}
	if last.ActionReport != nil {
		res.View = last.ActionReport.View
	}

	status := "success"
	if !res.Success {
		status = "failure"
		span.SetStatus(codes.Error, "conversation failed")
	}
	span.SetAttributes(attribute.Int("team.plans", len(plans)))
	s.recordDuration(ctx, tc.Name, t.Mode, status, elapsed)
	s.metrics.RecordConversation(string(t.Mode), status)
	s.logger.Info("conversation finished",
		zap.String("conv_id", convID),
		zap.String("team", tc.Name),
		zap.Bool("success", res.Success),
		zap.Duration("duration", elapsed))
	return res, nil
}

func (s *Service) recordDuration(ctx context.Context, teamName string, mode types.TeamMode, status string, d time.Duration) {
	s.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("team", teamName),
		attribute.String("mode", string(mode)),
		attribute.String("status", status),
	))
}

// Snapshot 并发读取计划与消息
func (s *Service) Snapshot(ctx context.Context, convID string) (*Snapshot, error) {
	snap := &Snapshot{ConvID: convID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		plans, err := s.memory.Plans(gctx, convID)
		snap.Plans = plans
		return err
	})
	g.Go(func() error {
		msgs, err := s.memory.Messages(gctx, convID)
		snap.Messages = msgs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(snap.Plans) == 0 && len(snap.Messages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
	}
	return snap, nil
}

// View 渲染会话视图：有计划时先输出计划块，再输出消息块
func (s *Service) View(ctx context.Context, convID string) (string, error) {
	snap, err := s.Snapshot(ctx, convID)
	if err != nil {
		return "", err
	}
	var parts []string
	if len(snap.Plans) > 0 {
		pv, err := (vis.PlanVis{}).Display(ctx, snap.Plans)
		if err != nil {
			return "", err
		}
		parts = append(parts, pv)
	}
	mv, err := (vis.MessageVis{}).Display(ctx, snap.Messages)
	if err != nil {
		return "", err
	}
	parts = append(parts, mv)
	return strings.Join(parts, "\n\n"), nil
}

// Subscribe 订阅会话的新消息，返回的函数用于取消订阅
func (s *Service) Subscribe(convID string) (<-chan *types.AgentMessage, func()) {
	return s.memory.Subscribe(convID)
}

// openingMessage 用户发出的第一条消息
func openingMessage(msgs []*types.AgentMessage) *types.AgentMessage {
	for _, m := range msgs {
		if m.Sender == agent.UserProxyName {
			return m
		}
	}
	return nil
}
