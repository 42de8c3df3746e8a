// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package agent 提供可对话智能体的核心实现。

# 回合

ConversableAgent 收到需要回复的消息后进入一个回合：

	received → thinking → reviewing → acting → verifying → send_reply
	                                              ↓
	                                          retry_self → thinking

验证失败时智能体把失败原因作为一条发给自己的消息写入记忆，再带着原因重新思考，
重试次数用尽后回复以 IsTermination 结束。每次状态变化以 debug 级别记录。

# 定制

不使用继承。Hooks 可以替换系统提示、上下文窗口、思考、动作与正确性检查，
ReplyRegistry 按发送方匹配回复处理器，命中时跳过默认回合。

# 注册表

Registry 把类型名映射到 Factory，团队配置通过类型名创建成员。
内置类型 assistant 使用 NewConversableAgent；管理者类型由 team 包注册。
*/
package agent
