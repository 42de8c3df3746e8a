// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package team 把配置中的团队定义组装成可运行的智能体，并提供会话级服务。

Builder 通过 agent.Registry 按类型实例化成员，再根据模式决定入口：

	single_agent  入口为唯一成员
	auto_plan     入口为 PlanChatManager，附带 Planner
	awel_layout   入口为 LayoutChatManager，按 layout.edges 执行

Service 负责一次会话的生命周期：Chat 发起会话（同一会话同一时刻只运行一次），
RetryChat 重置失败任务后继续驱动，Snapshot 并发读取计划与消息，
Subscribe 订阅实时消息。
*/
package team
