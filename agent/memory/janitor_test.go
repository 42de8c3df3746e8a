package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/types"
)

func TestJanitor_InvalidSchedule(t *testing.T) {
	_, err := NewJanitor(JanitorConfig{Schedule: "not a schedule"}, NewGptsMemory(nil, nil), nil)
	require.Error(t, err)
}

func TestJanitor_Defaults(t *testing.T) {
	j, err := NewJanitor(JanitorConfig{}, NewGptsMemory(nil, nil), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultJanitorConfig(), j.cfg)

	j.Start()
	j.Start()
	j.Stop()
	j.Stop()
}

func TestJanitor_RunOnceExpiresIdleConversations(t *testing.T) {
	m := NewGptsMemory(nil, nil)
	ctx := context.Background()

	_, err := m.AppendMessage(ctx, &types.AgentMessage{ConvID: "old", Sender: "a", Receiver: "b", Content: "x"})
	require.NoError(t, err)
	require.NoError(t, m.SavePlans(ctx, "old", []*types.GptsPlan{{ConvID: "old", SubTaskID: "1", SubTaskNum: 1, State: types.PlanStateTodo}}))

	j, err := NewJanitor(JanitorConfig{Retention: time.Hour}, m, nil)
	require.NoError(t, err)

	// 现在不过期
	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs, err := m.Messages(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	plans, err := m.Plans(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, plans)

	// rounds 缓存也被清掉，新消息重新从 0 开始
	stored, err := m.AppendMessage(ctx, &types.AgentMessage{ConvID: "old", Sender: "a", Receiver: "b", Content: "y"})
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Rounds)
}
