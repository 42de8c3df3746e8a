// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Command agentteam 运行多智能体会话服务。

子命令:

  - serve: 按配置装配存储、模型客户端与团队，启动 HTTP API
  - chat: 在终端运行（或重试）一次会话，实时打印消息
  - migrate: 用 golang-migrate 管理 gpts_plans / gpts_messages 表
  - health: 请求运行中服务的 /readyz
  - version: 打印构建信息

HTTP 中间件链（外到内）: Recovery, RequestID, SecurityHeaders, OTelTracing,
RequestLogger, 认证（JWT 或 API Key）, RateLimiter, MetricsMiddleware。
*/
package main
