package team

import (
	"errors"
	"net/http"

	"github.com/BaSui01/agentteam/types"
)

var (
	// ErrTeamNotFound 团队未定义
	ErrTeamNotFound = types.NewError(types.ErrCodeNotFound, "team not found").WithHTTPStatus(http.StatusNotFound)
	// ErrConversationNotFound 会话不存在
	ErrConversationNotFound = types.NewError(types.ErrCodeNotFound, "conversation not found").WithHTTPStatus(http.StatusNotFound)
	// ErrConversationExists 会话已有消息，不能用新目标重新开始
	ErrConversationExists = types.NewError(types.ErrCodeConflict, "conversation already exists").WithHTTPStatus(http.StatusConflict)
	// ErrNothingToRetry 没有失败或待执行的任务
	ErrNothingToRetry = types.NewError(types.ErrCodeConflict, "conversation has no failed task to retry").WithHTTPStatus(http.StatusConflict)

	// ErrUnknownResource 成员引用了未注册的资源
	ErrUnknownResource = errors.New("unknown resource")
	// ErrUnknownMode 团队模式不受支持
	ErrUnknownMode = errors.New("unknown team mode")
)
