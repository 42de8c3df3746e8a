package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/types"
)

// Subscriber 会话消息订阅源
type Subscriber interface {
	Subscribe(convID string) (<-chan *types.AgentMessage, func())
}

// StreamEvent 推送给客户端的一帧
type StreamEvent struct {
	ConvID  string              `json:"conv_id"`
	Message *types.AgentMessage `json:"message"`
}

// StreamHandler 通过 websocket 推送会话新消息
type StreamHandler struct {
	sub          Subscriber
	logger       *zap.Logger
	writeTimeout time.Duration
	// OriginPatterns 允许的跨域来源，空表示仅同源
	OriginPatterns []string
}

// NewStreamHandler 创建流处理器
func NewStreamHandler(sub Subscriber, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		sub:          sub,
		logger:       logger.With(zap.String("handler", "stream")),
		writeTimeout: 10 * time.Second,
	}
}

// Register 挂载路由
func (h *StreamHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/conversations/{id}/stream", h.HandleStream)
}

// HandleStream 升级为 websocket，直到客户端断开或服务关闭
// @Summary 会话消息流
// @Tags 会话
// @Param id path string true "会话 id"
// @Router /v1/conversations/{id}/stream [get]
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	if convID == "" {
		WriteError(w, r, types.NewValidationError("conversation id is required"), h.logger)
		return
	}

	// 先订阅再升级，避免握手期间的消息丢失
	ch, cancel := h.sub.Subscribe(convID)
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.String("conv_id", convID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只读；CloseRead 处理控制帧并在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("stream opened", zap.String("conv_id", convID))

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("stream closed", zap.String("conv_id", convID))
			return
		case msg, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "subscription ended")
				return
			}
			if err := h.write(ctx, conn, StreamEvent{ConvID: convID, Message: msg}); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Warn("stream write failed", zap.String("conv_id", convID), zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
