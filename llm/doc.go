// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package llm 定义模型客户端契约与模型选择策略。

# 核心类型

  - Client         : Create 补全 + Models 枚举，失败时返回可重试的 *types.Error
  - ModelSelector  : 按智能体/default 优先级选择模型，排除本轮已失败的模型
  - ModelHealth    : 基于 gobreaker 的逐模型熔断，熔断中的模型视为不健康
  - ResilientClient: 包装 Client，经由 ModelHealth 调用并记录指标与 trace

实际的网络调用在 llm/openai 中实现。
*/
package llm
