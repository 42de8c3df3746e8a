package migration

import (
	"fmt"

	"github.com/BaSui01/agentteam/config"
)

const defaultMigrationsTable = "schema_migrations"

// NewMigratorFromConfig 从应用配置创建迁移器
func NewMigratorFromConfig(cfg *config.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig 从数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  DatabaseURLFromConfig(dbType, dbCfg),
		TableName:    defaultMigrationsTable,
	})
}

// DatabaseURLFromConfig 按方言拼接迁移使用的连接串
func DatabaseURLFromConfig(dbType DatabaseType, dbCfg config.DatabaseConfig) string {
	switch dbType {
	case DatabaseTypeSQLite:
		// Name 为文件路径
		return BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	case DatabaseTypeMySQL:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, "")
	default:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	}
}

// NewMigratorFromURL 从连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    defaultMigrationsTable,
	})
}
