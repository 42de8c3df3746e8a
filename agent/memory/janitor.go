package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JanitorConfig 过期会话清理配置
type JanitorConfig struct {
	// Schedule cron 表达式或 "@every 1h"
	Schedule string `yaml:"schedule" json:"schedule"`
	// Retention 会话最后活跃后保留多久
	Retention time.Duration `yaml:"retention" json:"retention"`
}

// DefaultJanitorConfig 默认每小时清理一次，保留 24 小时
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{Schedule: "@every 1h", Retention: 24 * time.Hour}
}

// Janitor 定期清理支持 Expirer 的存储
type Janitor struct {
	cfg    JanitorConfig
	memory *GptsMemory
	cron   *cron.Cron
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	started bool
}

// NewJanitor 创建清理器
func NewJanitor(cfg JanitorConfig, m *GptsMemory, logger *zap.Logger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultJanitorConfig().Schedule
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultJanitorConfig().Retention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Janitor{
		cfg:    cfg,
		memory: m,
		cron:   cron.New(),
		logger: logger.With(zap.String("component", "memory_janitor")),
		now:    time.Now,
	}
	if _, err := j.cron.AddFunc(cfg.Schedule, j.runScheduled); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start 启动定时任务
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.cron.Start()
	j.started = true
}

// Stop 停止并等待正在运行的清理结束
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	j.mu.Unlock()
	<-j.cron.Stop().Done()
}

func (j *Janitor) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Warn("memory cleanup failed", zap.Error(err))
	}
}

// RunOnce 执行一次清理，返回删除的会话数
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.cfg.Retention)
	total := 0
	for _, store := range []any{j.memory.plans, j.memory.messages} {
		exp, ok := store.(Expirer)
		if !ok {
			continue
		}
		n, err := exp.ExpireBefore(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		j.memory.forgetIdle(cutoff)
		j.logger.Info("expired conversations removed", zap.Int("count", total))
	}
	return total, nil
}
