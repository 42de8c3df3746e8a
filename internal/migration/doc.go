// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
包 migration 管理 gpts_plans 与 gpts_messages 两张表的 Schema 版本，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

各方言的 SQL 脚本通过 embed.FS 内嵌。SQLite 使用纯 Go 的 modernc
驱动，不依赖 CGO。

  - Migrator / DefaultMigrator：Up/Down/Steps/Goto/Force/Version/Status/Info。
  - NewMigratorFromConfig：从应用配置创建迁移器。
  - CLI：`agentteam migrate <command>` 的实现，Run 负责参数分发。
*/
package migration
