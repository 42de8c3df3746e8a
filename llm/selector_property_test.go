package llm

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// 对任意名单、优先级与排除集合：
// Select 永远不返回被排除的模型，且只有在名单减去排除集合为空时才报错。
func TestProperty_SelectNeverReturnsExcluded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		pool := []string{"m0", "m1", "m2", "m3", "m4", "m5"}
		roster := rapid.SliceOfDistinct(rapid.SampledFrom(pool), rapid.ID[string]).Draw(rt, "roster")
		excluded := rapid.SliceOf(rapid.SampledFrom(pool)).Draw(rt, "excluded")
		priority := rapid.SliceOf(rapid.SampledFrom(pool)).Draw(rt, "priority")
		agent := rapid.SampledFrom([]string{"coder", "planner", "default"}).Draw(rt, "agent")

		s := NewModelSelector(nil,
			WithRoster(roster...),
			WithPriority(map[string][]string{agent: priority}))

		got, err := s.Select(context.Background(), SelectRequest{Agent: agent, Excluded: excluded})

		remaining := 0
		for _, m := range roster {
			if !slices.Contains(excluded, m) {
				remaining++
			}
		}
		if remaining == 0 {
			require.ErrorIs(rt, err, ErrNoModelAvailable)
			return
		}
		require.NoError(rt, err)
		assert.NotContains(rt, excluded, got)
		assert.Contains(rt, roster, got)
	})
}

// 逐次排除失败模型的重试循环最多访问名单长度个不同模型
func TestProperty_ExclusionGrowthVisitsEachModelOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		roster := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{3}`), 1, 6, rapid.ID[string]).Draw(rt, "roster")
		s := NewModelSelector(nil, WithRoster(roster...))

		var excluded []string
		for i := 0; i < len(roster); i++ {
			m, err := s.Select(context.Background(), SelectRequest{Excluded: excluded})
			require.NoError(rt, err)
			require.NotContains(rt, excluded, m)
			excluded = append(excluded, m)
		}
		_, err := s.Select(context.Background(), SelectRequest{Excluded: excluded})
		require.ErrorIs(rt, err, ErrNoModelAvailable)
	})
}
