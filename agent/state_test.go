package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentteam/testutil"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TurnState
		want     bool
	}{
		{StateReceived, StateThinking, true},
		{StateThinking, StateReviewing, true},
		{StateReviewing, StateActing, true},
		{StateReviewing, StateVerifying, true},
		{StateActing, StateVerifying, true},
		{StateVerifying, StateSendReply, true},
		{StateVerifying, StateRetrySelf, true},
		{StateVerifying, StateTerminate, true},
		{StateRetrySelf, StateThinking, true},
		{StateReceived, StateActing, false},
		{StateSendReply, StateThinking, false},
		{StateTerminate, StateThinking, false},
		{StateRetrySelf, StateSendReply, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTurn_LogsTransitions(t *testing.T) {
	logger, logs := testutil.ObservedLogger()
	tr := newTurn(logger.With(), "c1")
	tr.to(StateThinking)
	tr.to(StateReviewing)
	tr.to(StateSendReply)

	states := logs.FilterMessage("turn state").All()
	assert.Len(t, states, 4)
	assert.Equal(t, "c1", states[0].ContextMap()["conv_id"])
	assert.Equal(t, string(StateSendReply), states[3].ContextMap()["state"])

	invalid := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	assert.Len(t, invalid, 1)
	assert.Equal(t, StateSendReply, tr.state)
}

func TestErrInvalidTransition(t *testing.T) {
	err := ErrInvalidTransition{From: StateReceived, To: StateActing}
	assert.Equal(t, "invalid turn transition: received -> acting", err.Error())
}
