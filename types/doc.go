// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentteam 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包。agent、memory、manager、llm、
api 等上层模块共享的数据模型都定义于此，以避免循环依赖。

# 核心类型

  - AgentMessage  : 智能体之间的一轮消息（content、current_goal、review、action report）
  - ActionOutput  : 动作执行结果（is_exe_success、content、view、next_speakers）
  - GptsPlan      : 会话计划 DAG 中的一个子任务节点
  - PlanState     : 子任务状态 TODO / RUNNING / RETRYING / FAILED / COMPLETE
  - AgentContext  : 会话级配置（轮数预算、重试预算、温度等），会话开始后不可变
  - Message       : 发送给 LLM 的对话消息
  - Error         : 结构化错误，含错误码、HTTP 状态码和 Retryable 标记
*/
package types
