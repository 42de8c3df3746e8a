// Package retry 提供 LLM 调用重试时使用的退避策略。
//
// 重试循环本身由调用方显式编写（计数器 + 排除集合），这里只负责计算
// 每次重试前的等待时间并在等待期间响应 context 取消。
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxAttempts  int           // 最大尝试次数（含首次）
	InitialDelay time.Duration // 初始延迟时间
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加随机抖动
}

// DefaultPolicy 返回默认的重试策略：最多 3 次尝试
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize 修正非法参数
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay 计算第 attempt 次重试（从 1 开始）前的等待时间
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.InitialDelay == 0 {
		return 0
	}
	// 指数退避：delay = initial * multiplier^(attempt-1)
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// 随机抖动（±25%）
	if p.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}

// Sleep 等待第 attempt 次重试的退避时间，context 取消时提前返回
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
