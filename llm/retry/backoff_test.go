package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DelayExponential(t *testing.T) {
	p := Policy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     35 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	// 受 MaxDelay 限制
	assert.Equal(t, 35*time.Millisecond, p.Delay(3))
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	for i := 0; i < 50; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestPolicy_Normalize(t *testing.T) {
	p := Policy{MaxAttempts: -1, InitialDelay: -time.Second, Multiplier: 0.5}.Normalize()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, time.Duration(0), p.InitialDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 3, DefaultPolicy().MaxAttempts)
}

func TestPolicy_SleepCancelled(t *testing.T) {
	p := Policy{InitialDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Sleep(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolicy_SleepZeroDelay(t *testing.T) {
	p := Policy{}
	assert.NoError(t, p.Sleep(context.Background(), 1))
}
