// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentTeam HTTP API 的请求处理器。

# 核心类型

  - ConversationHandler: 发起会话、重试、读取计划与消息、渲染视图、列出团队
  - StreamHandler: 通过 websocket 推送会话的新消息
  - HealthHandler: 存活、就绪与版本端点，就绪检查可插拔
  - Response / ErrorInfo: 统一 JSON 响应结构

# 错误映射

WriteError 接受任意 error。*types.Error（含被 %w 包装的 sentinel）按 HTTPStatus
或 ErrorCode 映射状态码；其他错误一律返回 500 INTERNAL_ERROR，原始信息只写日志。

所有处理器使用标准 net/http，路由按 Go 1.22 的 "METHOD /path/{id}" 模式注册。
*/
package handlers
