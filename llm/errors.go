package llm

import (
	"errors"
	"net/http"

	"github.com/BaSui01/agentteam/types"
)

// ErrNoModelAvailable 排除失败模型后没有任何候选
var ErrNoModelAvailable = errors.New("no model service available")

// NewRetryableError 构造可重试的模型错误
func NewRetryableError(code types.ErrorCode, msg string, cause error) *types.Error {
	return types.NewError(code, msg).WithCause(cause).WithRetryable(true)
}

// ErrorFromStatus 将上游 HTTP 状态码映射为结构化错误
func ErrorFromStatus(status int, msg string) *types.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrCodeRateLimit, msg).WithHTTPStatus(status).WithRetryable(true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrCodeUnauthorized, msg).WithHTTPStatus(status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrCodeTimeout, msg).WithHTTPStatus(status).WithRetryable(true)
	case status >= 500:
		return types.NewError(types.ErrCodeUpstream, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		return types.NewError(types.ErrCodeValidation, msg).WithHTTPStatus(status)
	}
}
