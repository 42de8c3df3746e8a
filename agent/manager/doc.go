// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package manager 提供多智能体团队的管理者。

  - PlannerAgent: 把目标拆成 GptsPlan 任务列表，PlanAction 只接受恰好一个 JSON 数组
  - PlanChatManager: 按依赖顺序分派任务，失败的任务进入 RETRYING，超出预算后 FAILED
  - LayoutChatManager: 按配置的 DAG 布局驱动成员，NextSpeakers 决定下游分支
  - SpeakerSelector: 为任务挑选执行者，最终退回轮询，团队非空时不会失败

管理者本身不调用模型，思考阶段直接转发收到的目标，驱动逻辑放在 Act 钩子中。
*/
package manager
