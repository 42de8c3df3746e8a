package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent/team"
	"github.com/BaSui01/agentteam/internal/ctxkeys"
	"github.com/BaSui01/agentteam/types"
)

// ConversationService 会话处理器依赖的服务面
type ConversationService interface {
	Chat(ctx context.Context, req team.ChatRequest) (*team.ChatResult, error)
	RetryChat(ctx context.Context, convID string) (*team.ChatResult, error)
	Snapshot(ctx context.Context, convID string) (*team.Snapshot, error)
	View(ctx context.Context, convID string) (string, error)
	Teams() []team.TeamInfo
}

// ConversationHandler 会话 API
type ConversationHandler struct {
	svc    ConversationService
	logger *zap.Logger
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(svc ConversationService, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{svc: svc, logger: logger.With(zap.String("handler", "conversation"))}
}

// Register 挂载路由
func (h *ConversationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/teams", h.HandleTeams)
	mux.HandleFunc("POST /v1/conversations", h.HandleCreate)
	mux.HandleFunc("GET /v1/conversations/{id}", h.HandleGet)
	mux.HandleFunc("GET /v1/conversations/{id}/plans", h.HandlePlans)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", h.HandleMessages)
	mux.HandleFunc("GET /v1/conversations/{id}/view", h.HandleView)
	mux.HandleFunc("POST /v1/conversations/{id}/retry", h.HandleRetry)
}

// HandleTeams 列出配置的团队
// @Summary 团队列表
// @Tags 会话
// @Produce json
// @Success 200 {object} Response
// @Router /v1/teams [get]
func (h *ConversationHandler) HandleTeams(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.svc.Teams())
}

// HandleCreate 发起会话并同步等待结束
// @Summary 发起会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body team.ChatRequest true "团队与目标"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/conversations [post]
func (h *ConversationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req team.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Team) == "" {
		WriteError(w, r, types.NewValidationError("team is required"), h.logger)
		return
	}

	ctx := r.Context()
	if req.ConvID != "" {
		ctx = ctxkeys.WithConvID(ctx, req.ConvID)
	}
	res, err := h.svc.Chat(ctx, req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleRetry 重试失败的任务
// @Summary 重试会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 id"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/conversations/{id}/retry [post]
func (h *ConversationHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	res, err := h.svc.RetryChat(ctxkeys.WithConvID(r.Context(), convID), convID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleGet 会话快照（计划与消息）
// @Summary 会话快照
// @Tags 会话
// @Produce json
// @Param id path string true "会话 id"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/conversations/{id} [get]
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, snap)
}

// HandlePlans 会话计划
// @Router /v1/conversations/{id}/plans [get]
func (h *ConversationHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	plans := snap.Plans
	if plans == nil {
		plans = []*types.GptsPlan{}
	}
	WriteSuccess(w, r, plans)
}

// HandleMessages 会话消息，按 rounds 排序
// @Router /v1/conversations/{id}/messages [get]
func (h *ConversationHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, snap.Messages)
}

// HandleView 会话的渲染视图（markdown 代码块）
// @Router /v1/conversations/{id}/view [get]
func (h *ConversationHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.View(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(view))
}
