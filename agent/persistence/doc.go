// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
包 persistence 为 GptsPlansMemory 与 GptsMessageMemory 提供可插拔的持久化后端。

# 后端实现

  - Memory: agent/memory 中的内存实现，适合开发与测试。
  - Redis: 每个会话一个 Hash 保存任务、一个 Sorted Set 按 rounds 保存消息，
    任务修改通过 WATCH/MULTI 乐观锁完成。
  - SQL: 基于 GORM，支持 PostgreSQL / MySQL / SQLite，表为 gpts_plans 与 gpts_messages。
  - Mongo: 基于 mongo-driver v2，集合名与 SQL 表名一致。

# 使用方式

	stores, err := persistence.NewStores(ctx, cfg, logger)
	mem := memory.NewGptsMemory(stores.Plans, stores.Messages)

所有后端都通过 memorytest 中的同一组契约测试。
*/
package persistence
