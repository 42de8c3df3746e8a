package manager

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAgent 计划或布局引用了不在团队中的智能体
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrEmptyTeam 团队没有任何成员
	ErrEmptyTeam = errors.New("team has no agents")

	// ErrNoPlanner 自动规划团队缺少规划器
	ErrNoPlanner = errors.New("planner not set")
)

// CycleError 依赖图中存在环，Path 首尾相同
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}
