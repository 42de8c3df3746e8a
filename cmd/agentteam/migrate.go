package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/agentteam/config"
	"github.com/BaSui01/agentteam/internal/migration"
)

// runMigrate 处理 `agentteam migrate <command> [arg] [--config path] [--db-type t --db-url u]`
func runMigrate(ctx context.Context, args []string) error {
	var command []string
	// 命令与参数可以出现在 flag 之前或之后
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = append(command, args[0])
		args = args[1:]
	}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	command = append(command, fs.Args()...)

	m, err := newMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(os.Stdout)
	return cli.Run(ctx, command)
}

func newMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL)
	}

	// 迁移不需要团队配置，只做加载不做完整校验
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromConfig(cfg)
}
