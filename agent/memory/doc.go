// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package memory 提供会话计划与消息的存储契约以及 GptsMemory 门面。

# 核心类型

  - GptsPlansMemory   计划存储，BatchSave、CompleteTask、UpdateTask、RemoveByConvID 等
  - GptsMessageMemory 消息存储，Append、GetBetweenAgents、GetLastMessage 等
  - GptsMemory        门面，校验消息、分配 rounds、推送订阅、记录指标
  - Janitor           基于 cron 的过期会话清理

内存实现用于开发与测试，redis / SQL / mongo 实现位于 agent/persistence。
所有实现都按 conv_id 分区，单行修改是原子的。
*/
package memory
