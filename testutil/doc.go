// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package testutil 提供各包测试共享的辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 记忆: NewMemory 返回内存存储上的 GptsMemory
  - 日志: ObservedLogger 用于断言回合状态日志
  - 异步断言: AssertEventuallyTrue

# 子包

  - testutil/mocks: MockLLM（模型客户端）、MockStores（可注入错误的存储）、
    MockAction 与 MockTool，均支持 Builder 模式
  - testutil/fixtures: 团队配置、计划与规划器输出样例

# 使用示例

	ctx := testutil.TestContext(t)
	llm := mocks.NewMockLLM().WithAgentScript("Planner", fixtures.TwoStepPlan())
*/
package testutil
