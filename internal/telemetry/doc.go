// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry 的 OTLP 导出。
// 智能体回合、模型调用与 HTTP 请求都通过 otel 全局对象创建 span，
// 未启用时全局对象保持 noop。
package telemetry
