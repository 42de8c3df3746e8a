// AgentTeam 主入口
//
// 使用方法:
//
//	agentteam serve --config config.yaml          # 启动 HTTP 服务
//	agentteam chat --team analysts --goal "..."   # 在终端运行一次会话
//	agentteam migrate up                          # 运行数据库迁移
//	agentteam health --addr http://localhost:8080 # 健康检查
//	agentteam version                             # 版本信息

// @title AgentTeam API
// @version 1.0.0
// @description Multi-agent conversations driven by planners and layout graphs.
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentteam/config"
)

// 构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "chat":
		err = runChat(ctx, os.Args[2:], os.Stdout)
	case "migrate":
		err = runMigrate(ctx, os.Args[2:])
	case "health":
		err = runHealthCheck(ctx, os.Args[2:])
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentteam %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，path 为空时只使用默认值与环境变量
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting agentteam",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.serve(ctx); err != nil {
		return err
	}
	logger.Info("agentteam stopped")
	return nil
}

func runHealthCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *addr+"/readyz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("health check failed: status %d: %s", resp.StatusCode, body)
	}
	fmt.Println("OK")
	return nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "AgentTeam %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `AgentTeam - multi-agent conversations

Usage:
  agentteam <command> [options]

Commands:
  serve     Start the HTTP server
  chat      Run one conversation in the terminal
  migrate   Database migration commands (up, down, status, ...)
  health    Check a running server
  version   Show version information

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'chat':
  --config <path>   Path to configuration file (YAML)
  --team <name>     Team to run
  --goal <text>     Conversation goal
  --conv <id>       Conversation id (generated when empty)
  --retry           Retry the failed tasks of --conv instead of starting

Examples:
  agentteam serve --config /etc/agentteam/config.yaml
  agentteam chat --config config.yaml --team analysts --goal "summarize last week's sales"
  agentteam migrate up --config config.yaml
  agentteam health --addr http://localhost:8080
`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("invalid log config, using defaults", zap.Error(err))
	}
	return logger
}
