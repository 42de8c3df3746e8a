package agent

import (
	"fmt"

	"go.uber.org/zap"
)

// TurnState 一次回复生成过程中的状态
type TurnState string

const (
	StateReceived  TurnState = "received"
	StateThinking  TurnState = "thinking"
	StateReviewing TurnState = "reviewing"
	StateActing    TurnState = "acting"
	StateVerifying TurnState = "verifying"
	StateSendReply TurnState = "send_reply"
	StateRetrySelf TurnState = "retry_self"
	StateTerminate TurnState = "terminate"
)

// validTransitions 定义合法的状态转换
var validTransitions = map[TurnState][]TurnState{
	StateReceived:  {StateThinking, StateTerminate},
	StateThinking:  {StateReviewing, StateTerminate},
	StateReviewing: {StateActing, StateVerifying},
	StateActing:    {StateVerifying, StateTerminate},
	StateVerifying: {StateSendReply, StateRetrySelf, StateTerminate},
	StateRetrySelf: {StateThinking},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to TurnState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From TurnState
	To   TurnState
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid turn transition: %s -> %s", e.From, e.To)
}

// turn 跟踪一次 GenerateReply 的状态
type turn struct {
	logger *zap.Logger
	state  TurnState
	retry  int
}

func newTurn(logger *zap.Logger, convID string) *turn {
	t := &turn{logger: logger.With(zap.String("conv_id", convID)), state: StateReceived}
	t.logger.Debug("turn state", zap.String("state", string(StateReceived)), zap.Int("retry", 0))
	return t
}

// to 切换状态；非法转换只记录，不中断对话
func (t *turn) to(next TurnState) {
	if !CanTransition(t.state, next) {
		t.logger.Error("unexpected turn transition", zap.Error(ErrInvalidTransition{From: t.state, To: next}))
	}
	t.state = next
	t.logger.Debug("turn state", zap.String("state", string(next)), zap.Int("retry", t.retry))
}
