package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent/action"
	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/internal/metrics"
	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/llm/retry"
	"github.com/BaSui01/agentteam/llm/tokenizer"
	"github.com/BaSui01/agentteam/types"
)

// DefaultMaxRetryCount 工作智能体的默认自我纠错次数，管理者为 0
const DefaultMaxRetryCount = 3

// EmptyResultReason 动作成功但没有内容时的纠错提示
const EmptyResultReason = "The execution result is empty. Please check the code or answer and make sure it produces a non-empty result."

// Config 智能体配置
type Config struct {
	Profile Profile
	// MaxRetryCount 验证失败后自我纠错的次数，通常为 DefaultMaxRetryCount
	MaxRetryCount int
	Actions       []action.Action
	Resources     []resource.Resource
	Hooks         Hooks
	// Replies 为 nil 时使用空列表
	Replies *ReplyRegistry
}

// Deps 运行依赖。Memory 与 AgentContext 由团队共享，智能体不拥有它们。
type Deps struct {
	Memory       *memory.GptsMemory
	AgentContext types.AgentContext
	LLM          llm.Client
	// Selector 为 nil 时基于 LLM 创建默认选择器
	Selector  *llm.ModelSelector
	Tokenizer *tokenizer.Resolver
	// Retry 单步推理中模型调用的退避，零值使用 retry.DefaultPolicy
	Retry   retry.Policy
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// ThinkingInput 构造上下文窗口所需的信息
type ThinkingInput struct {
	Received *types.AgentMessage
	Sender   Agent
	Rely     []*types.AgentMessage
	// PreviousOutput/FailReason 仅在重试时非空
	PreviousOutput string
	FailReason     string
}

// Hooks 在不继承的前提下定制智能体行为，nil 字段使用默认实现
type Hooks struct {
	SystemPrompt         func(ctx context.Context) (string, error)
	LoadThinkingMessages func(ctx context.Context, in ThinkingInput) ([]types.Message, error)
	// Thinking 替代模型调用，返回输出文本与所用模型
	Thinking func(ctx context.Context, messages []types.Message, received *types.AgentMessage) (content, model string, err error)
	// Act 替代动作链。error 与 panic 转为失败的 ActionOutput，上下文取消时中止本轮。
	Act func(ctx context.Context, received *types.AgentMessage, llmReply string, sender Agent) (*types.ActionOutput, error)
	// CorrectnessCheck 在内置校验通过后执行
	CorrectnessCheck func(ctx context.Context, reply *types.AgentMessage) (bool, string)
}

// ConversableAgent 可对话的智能体：think → review → act → verify，失败时带着原因重试
type ConversableAgent struct {
	profile       Profile
	maxRetryCount int
	actions       []action.Action
	resources     []resource.Resource
	hooks         Hooks
	replies       *ReplyRegistry

	deps   Deps
	retry  retry.Policy
	logger *zap.Logger
	tracer trace.Tracer
}

var _ Agent = (*ConversableAgent)(nil)

// NewConversableAgent 创建智能体
func NewConversableAgent(cfg Config, deps Deps) (*ConversableAgent, error) {
	if strings.TrimSpace(cfg.Profile.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if cfg.MaxRetryCount < 0 {
		return nil, fmt.Errorf("%w: max retry count must not be negative", ErrInvalidConfig)
	}
	if deps.Memory == nil {
		return nil, ErrNoMemory
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Selector == nil && deps.LLM != nil {
		deps.Selector = llm.NewModelSelector(deps.LLM, llm.WithSelectorLogger(deps.Logger))
	}
	deps.AgentContext = deps.AgentContext.WithDefaults()

	policy := deps.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	profile := cfg.Profile
	if profile.Role == "" {
		profile.Role = profile.Name
	}
	replies := cfg.Replies
	if replies == nil {
		replies = NewReplyRegistry()
	}

	return &ConversableAgent{
		profile:       profile,
		maxRetryCount: cfg.MaxRetryCount,
		actions:       append([]action.Action(nil), cfg.Actions...),
		resources:     append([]resource.Resource(nil), cfg.Resources...),
		hooks:         cfg.Hooks,
		replies:       replies,
		deps:          deps,
		retry:         policy.Normalize(),
		logger:        deps.Logger.With(zap.String("agent", profile.Name)),
		tracer:        otel.Tracer("agentteam/agent"),
	}, nil
}

// Name 返回智能体名字
func (a *ConversableAgent) Name() string { return a.profile.Name }

// Profile 返回身份描述
func (a *ConversableAgent) Profile() Profile { return a.profile }

// AgentContext 返回会话配置
func (a *ConversableAgent) AgentContext() types.AgentContext { return a.deps.AgentContext }

// Memory 返回共享的 GptsMemory
func (a *ConversableAgent) Memory() *memory.GptsMemory { return a.deps.Memory }

// Logger 返回带 agent 字段的日志
func (a *ConversableAgent) Logger() *zap.Logger { return a.logger }

// Resources 返回绑定的资源
func (a *ConversableAgent) Resources() []resource.Resource {
	return append([]resource.Resource(nil), a.resources...)
}

// MaxRetryCount 返回自我纠错次数
func (a *ConversableAgent) MaxRetryCount() int { return a.maxRetryCount }

// Replies 返回回复处理器列表
func (a *ConversableAgent) Replies() *ReplyRegistry { return a.replies }

// Send implements Agent.
func (a *ConversableAgent) Send(ctx context.Context, msg *types.AgentMessage, recipient Agent, opts SendOptions) (*types.AgentMessage, error) {
	if recipient == nil {
		return nil, fmt.Errorf("%w: recipient is nil", ErrInvalidConfig)
	}
	if msg == nil {
		return nil, types.NewValidationError("agent %s: message is nil", a.Name())
	}
	out := msg.Clone()
	out.Sender = a.Name()
	out.Receiver = recipient.Name()
	if out.ConvID == "" {
		out.ConvID = a.deps.AgentContext.ConvID
	}
	if out.Role == "" {
		out.Role = types.MessageRoleAI
	}
	return recipient.Receive(ctx, out, a, opts)
}

// Receive implements Agent.
func (a *ConversableAgent) Receive(ctx context.Context, msg *types.AgentMessage, sender Agent, opts SendOptions) (*types.AgentMessage, error) {
	stored, err := a.deps.Memory.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	// 没有 sender 时回复无处投递，不生成
	if !opts.RequestReply || sender == nil || IsTerminate(stored.Content) {
		return stored, nil
	}

	var reply *types.AgentMessage
	if handler, ok := a.replies.Match(stored, sender); ok {
		reply, err = handler(ctx, stored, sender)
	} else {
		reply, err = a.GenerateReply(ctx, stored, sender, opts.Reviewer, opts.RelyMessages)
	}
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return stored, nil
	}
	return a.Send(ctx, reply, sender, SendOptions{})
}

// GenerateReply implements Agent.
func (a *ConversableAgent) GenerateReply(ctx context.Context, received *types.AgentMessage, sender Agent, reviewer Reviewer, rely []*types.AgentMessage) (*types.AgentMessage, error) {
	if received == nil {
		return nil, types.NewValidationError("agent %s: received message is nil", a.Name())
	}
	if reviewer == nil {
		reviewer = DefaultReviewer
	}

	ctx, span := a.tracer.Start(ctx, "agent.generate_reply", trace.WithAttributes(
		attribute.String("agent", a.Name()),
		attribute.String("conv_id", received.ConvID),
	))
	defer span.End()

	start := time.Now()
	reply, err := a.generateReply(ctx, received, sender, reviewer, rely)
	status := "success"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !reply.Success:
		status = "failure"
		span.SetStatus(codes.Error, "verification failed")
	}
	a.deps.Metrics.RecordAgentTurn(a.Name(), status, time.Since(start))
	return reply, err
}

func (a *ConversableAgent) generateReply(ctx context.Context, received *types.AgentMessage, sender Agent, reviewer Reviewer, rely []*types.AgentMessage) (*types.AgentMessage, error) {
	reply := a.newReply(received, sender)
	t := newTurn(a.logger, received.ConvID)
	in := ThinkingInput{Received: received, Sender: sender, Rely: rely}

	for {
		t.to(StateThinking)
		window, err := a.loadWindow(ctx, in)
		if err != nil {
			t.to(StateTerminate)
			return nil, fmt.Errorf("agent %s: load thinking messages: %w", a.Name(), err)
		}
		content, model, err := a.think(ctx, window, received)
		if err != nil {
			t.to(StateTerminate)
			return nil, err
		}
		reply.Content = content
		reply.ModelName = model

		t.to(StateReviewing)
		approve, comments := reviewer.Review(ctx, content, a)
		reply.ReviewInfo = &types.ReviewInfo{Approve: approve, Comments: comments}

		var out *types.ActionOutput
		if approve {
			t.to(StateActing)
			out, err = a.act(ctx, received, content, sender)
			if err != nil {
				t.to(StateTerminate)
				return nil, err
			}
		}
		reply.ActionReport = out

		t.to(StateVerifying)
		ok, reason := a.verify(ctx, reply)
		if ok {
			t.to(StateSendReply)
			reply.Success = true
			return reply, nil
		}

		if t.retry >= a.maxRetryCount {
			t.to(StateTerminate)
			a.logger.Warn("retries exhausted",
				zap.String("conv_id", received.ConvID),
				zap.Int("max_retry_count", a.maxRetryCount),
				zap.String("reason", reason))
			if a.maxRetryCount > 0 {
				reply.Content = fmt.Sprintf("After trying %d times, I still haven't completed the task: %s", a.maxRetryCount, reason)
			} else {
				reply.Content = reason
			}
			reply.Success = false
			reply.IsTermination = true
			return reply, nil
		}

		t.retry++
		t.to(StateRetrySelf)
		a.deps.Metrics.RecordAgentRetry(a.Name())
		a.logger.Warn("verification failed, retrying",
			zap.String("conv_id", received.ConvID),
			zap.Int("retry", t.retry),
			zap.String("reason", reason))

		corrective := &types.AgentMessage{
			ConvID:      received.ConvID,
			Sender:      a.Name(),
			Receiver:    a.Name(),
			Role:        types.MessageRoleHuman,
			Content:     reason,
			CurrentGoal: received.CurrentGoal,
			Context:     received.Context,
		}
		if _, err := a.deps.Memory.AppendMessage(ctx, corrective); err != nil {
			return nil, fmt.Errorf("agent %s: persist retry message: %w", a.Name(), err)
		}
		in.PreviousOutput = content
		in.FailReason = reason
	}
}

// newReply 回复骨架，继承目标与上下文
func (a *ConversableAgent) newReply(received *types.AgentMessage, sender Agent) *types.AgentMessage {
	receiver := received.Sender
	if sender != nil {
		receiver = sender.Name()
	}
	reply := &types.AgentMessage{
		ConvID:      received.ConvID,
		Sender:      a.Name(),
		Receiver:    receiver,
		Role:        types.MessageRoleAI,
		CurrentGoal: received.CurrentGoal,
	}
	if received.Context != nil {
		reply.Context = make(map[string]any, len(received.Context))
		for k, v := range received.Context {
			reply.Context[k] = v
		}
	}
	return reply
}

// think 调用模型，最多 retry.MaxAttempts 次，每次排除已失败的模型
func (a *ConversableAgent) think(ctx context.Context, window Window, received *types.AgentMessage) (string, string, error) {
	if a.hooks.Thinking != nil {
		return a.hooks.Thinking(ctx, window.Messages(), received)
	}
	if a.deps.LLM == nil {
		return "", "", ErrNoLLMClient
	}

	agentCtx := a.deps.AgentContext
	var (
		excluded []string
		lastErr  error
	)
	for attempt := 0; attempt < a.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := a.retry.Sleep(ctx, attempt); err != nil {
				return "", "", err
			}
		}

		model, err := a.deps.Selector.Select(ctx, llm.SelectRequest{
			Agent:    a.Name(),
			Roster:   agentCtx.Models,
			Excluded: excluded,
		})
		if err != nil {
			if lastErr == nil {
				return "", "", err
			}
			break
		}

		out, err := a.deps.LLM.Create(ctx, &llm.CompletionRequest{
			Messages:     a.fitWindow(model, window),
			Model:        model,
			MaxNewTokens: agentCtx.MaxNewTokens,
			Temperature:  agentCtx.Temperature,
			Context: map[string]any{
				"conv_id": received.ConvID,
				"agent":   a.Name(),
			},
		})
		if err == nil {
			return out, model, nil
		}

		lastErr = err
		excluded = append(excluded, model)
		a.logger.Warn("model call failed",
			zap.String("conv_id", received.ConvID),
			zap.String("model", model),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if !types.IsRetryable(err) {
			break
		}
	}
	return "", "", types.NewError(types.ErrCodeLLMUnavailable,
		fmt.Sprintf("agent %s: model call failed after %d attempt(s)", a.Name(), len(excluded))).WithCause(lastErr)
}

// act 依次执行动作，上一个动作的输出作为下一个的 relyOut，遇到失败即停止
func (a *ConversableAgent) act(ctx context.Context, received *types.AgentMessage, content string, sender Agent) (out *types.ActionOutput, err error) {
	if a.hooks.Act != nil {
		defer func() {
			if r := recover(); r != nil {
				out, err = types.NewFailedOutput(fmt.Sprintf("agent %s act raised an exception: %v", a.Name(), r)), nil
			}
		}()
		out, err = a.hooks.Act(ctx, received, content, sender)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			return types.NewFailedOutput(err.Error()), nil
		case out == nil:
			return types.NewFailedOutput(fmt.Sprintf("agent %s act returned no output", a.Name())), nil
		}
		return out, nil
	}

	if len(a.actions) == 0 {
		return types.NewSuccessOutput(content), nil
	}

	opts := action.RunOptions{
		ConvID:       received.ConvID,
		Sender:       received.Sender,
		CurrentGoal:  received.CurrentGoal,
		AgentContext: a.deps.AgentContext,
		Context:      received.Context,
	}
	for _, act := range a.actions {
		res := resource.Match(a.resources, act.ResourceNeed())
		out = action.SafeRun(ctx, act, content, res, out, opts)
		if !out.IsExeSuccess {
			a.logger.Debug("action failed",
				zap.String("action", act.Name()),
				zap.String("conv_id", received.ConvID))
			break
		}
	}
	return out, nil
}

// verify 按顺序检查：审查、动作结果、空结果、自定义校验
func (a *ConversableAgent) verify(ctx context.Context, reply *types.AgentMessage) (bool, string) {
	if reply.ReviewInfo != nil && !reply.ReviewInfo.Approve {
		if reply.ReviewInfo.Comments == "" {
			return false, "The answer was rejected by the reviewer."
		}
		return false, reply.ReviewInfo.Comments
	}
	out := reply.ActionReport
	if out == nil {
		return false, "No action output was produced."
	}
	if !out.IsExeSuccess {
		return false, out.Content
	}
	if strings.TrimSpace(out.Content) == "" {
		return false, EmptyResultReason
	}
	if a.hooks.CorrectnessCheck != nil {
		return a.hooks.CorrectnessCheck(ctx, reply)
	}
	return true, ""
}
