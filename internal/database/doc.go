// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
包 database 负责按驱动名打开 GORM 连接，并管理连接池。

  - Open：postgres / mysql / sqlite 方言选择。
  - PoolManager：连接池参数、后台健康检查、连接数指标上报与事务重试。
*/
package database
