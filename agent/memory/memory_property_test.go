package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentteam/types"
)

// 任意多个会话交错追加消息，每个会话内 rounds 从 0 开始连续递增
func TestProperty_GptsMemory_RoundsAreDenseAndMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewGptsMemory(nil, nil)
		ctx := context.Background()

		convs := rapid.IntRange(1, 4).Draw(rt, "convs")
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		counts := make(map[string]int)

		for i := 0; i < steps; i++ {
			convID := fmt.Sprintf("conv-%d", rapid.IntRange(0, convs-1).Draw(rt, fmt.Sprintf("conv_%d", i)))
			empty := rapid.Bool().Draw(rt, fmt.Sprintf("empty_%d", i))
			msg := &types.AgentMessage{ConvID: convID, Sender: "a", Receiver: "b", Content: "x"}
			if empty {
				msg.Content = ""
			}

			stored, err := m.AppendMessage(ctx, msg)
			if empty {
				require.Error(rt, err)
				continue
			}
			require.NoError(rt, err)
			require.Equal(rt, counts[convID], stored.Rounds)
			counts[convID]++
		}

		for convID, n := range counts {
			msgs, err := m.Messages(ctx, convID)
			require.NoError(rt, err)
			require.Len(rt, msgs, n)
			for i, msg := range msgs {
				require.Equal(rt, i, msg.Rounds)
			}
		}
	})
}
