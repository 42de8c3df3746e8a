// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、Agent 轮次、计划任务状态与数据库连接。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等向量指标。
    nil Collector 的所有方法都是空操作，组件可以不注入指标。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：按 model/status 统计调用次数与耗时。
  - Agent 指标：轮次数、轮次耗时、校验失败重试次数。
  - 计划指标：子任务状态迁移、会话结束状态。
  - 数据库指标：活跃/空闲连接数。
*/
package metrics
