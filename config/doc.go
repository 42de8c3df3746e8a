// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

// Package config 提供 agentteam 的配置加载。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（前缀 AGENTTEAM_，嵌套字段以 _ 连接）。
// 团队定义（teams）与模型优先级（llm.priority）只能通过 YAML 配置。
package config
