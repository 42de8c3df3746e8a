package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent"
	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/persistence"
	"github.com/BaSui01/agentteam/agent/team"
	"github.com/BaSui01/agentteam/api/handlers"
	"github.com/BaSui01/agentteam/config"
	"github.com/BaSui01/agentteam/internal/database"
	"github.com/BaSui01/agentteam/internal/metrics"
	"github.com/BaSui01/agentteam/internal/telemetry"
	"github.com/BaSui01/agentteam/llm"
	"github.com/BaSui01/agentteam/llm/openai"
	"github.com/BaSui01/agentteam/llm/retry"
	"github.com/BaSui01/agentteam/llm/tokenizer"
	"github.com/BaSui01/agentteam/types"
)

// metricsNamespace prometheus 指标前缀
const metricsNamespace = "agentteam"

// app 进程内共享的组件，serve 与 chat 共用
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Collector
	telemetry *telemetry.Providers

	pool    *database.PoolManager
	stores  *persistence.Stores
	memory  *memory.GptsMemory
	janitor *memory.Janitor
	service *team.Service
	checks  []handlers.HealthCheck
}

// newApp 按配置装配全部组件。失败时已创建的连接会被关闭。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewCollector(metricsNamespace, a.registry, logger)

	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		// 追踪不可用不影响服务
		logger.Warn("telemetry disabled", zap.Error(err))
		a.telemetry, err = nil, nil
	}

	if err = a.openStores(ctx); err != nil {
		return a, err
	}
	a.memory = memory.NewGptsMemory(a.stores.Plans, a.stores.Messages,
		memory.WithLogger(logger), memory.WithMetrics(a.metrics))

	if cfg.Memory.Retention > 0 {
		a.janitor, err = memory.NewJanitor(memory.JanitorConfig{
			Schedule:  cfg.Memory.CleanupSchedule,
			Retention: cfg.Memory.Retention,
		}, a.memory, logger)
		if err != nil {
			return a, fmt.Errorf("janitor: %w", err)
		}
	}

	deps, err := a.agentDeps()
	if err != nil {
		return a, err
	}

	reg := agent.NewRegistry(logger)
	team.RegisterBuiltins(reg)
	res, err := loadResources(cfg.Resources)
	if err != nil {
		return a, err
	}
	builder := team.NewBuilder(reg).
		WithResources(res...).
		WithDefaults(cfg.Agent).
		WithLLMSpeakerChoice().
		WithLogger(logger)

	// 启动时组装一遍所有团队，配置错误（未知资源、环）尽早暴露
	for _, tc := range cfg.Teams {
		if _, err = builder.Build(tc, deps); err != nil {
			return a, fmt.Errorf("team %s: %w", tc.Name, err)
		}
	}

	a.service, err = team.NewService(cfg.Teams, builder, deps)
	if err != nil {
		return a, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	cfg := a.cfg
	sc := persistence.DefaultStoreConfig()
	sc.Type = persistence.StoreType(cfg.Memory.Store)
	sc.Redis = persistence.RedisStoreConfig{
		Host:      cfg.Redis.Host,
		Port:      cfg.Redis.Port,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		PoolSize:  cfg.Redis.PoolSize,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}
	sc.Mongo = persistence.MongoStoreConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database}
	sc.SQL = persistence.SQLStoreConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN(), AutoMigrate: cfg.Database.AutoMigrate}

	var opts []persistence.FactoryOption
	if sc.Type == persistence.StoreTypeSQL {
		db, err := database.Open(database.Config{Driver: sc.SQL.Driver, DSN: sc.SQL.DSN}, a.logger)
		if err != nil {
			return err
		}
		pc := database.DefaultPoolConfig()
		if cfg.Database.MaxOpenConns > 0 {
			pc.MaxOpenConns = cfg.Database.MaxOpenConns
		}
		if cfg.Database.MaxIdleConns > 0 {
			pc.MaxIdleConns = min(cfg.Database.MaxIdleConns, pc.MaxOpenConns)
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			pc.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		}
		a.pool, err = database.NewPoolManager(db, pc, a.logger, database.WithMetrics(a.metrics, "gpts"))
		if err != nil {
			return fmt.Errorf("database pool: %w", err)
		}
		opts = append(opts, persistence.WithPool(a.pool))
		a.checks = append(a.checks, handlers.NewPingCheck("database", a.pool.Ping))
	}

	stores, err := persistence.NewStores(ctx, sc, a.logger, opts...)
	if err != nil {
		return fmt.Errorf("gpts stores: %w", err)
	}
	a.stores = stores
	a.checks = append(a.checks, handlers.NewPingCheck("gpts_store", stores.Ping))
	return nil
}

func (a *app) agentDeps() (agent.Deps, error) {
	cfg := a.cfg
	deps := agent.Deps{
		Memory: a.memory,
		AgentContext: types.AgentContext{
			Language:      cfg.Agent.Language,
			MaxChatRound:  cfg.Agent.MaxChatRound,
			MaxRetryRound: cfg.Agent.MaxRetryRound,
			MaxNewTokens:  cfg.Agent.MaxNewTokens,
			Temperature:   cfg.Agent.Temperature,
			Models:        cfg.LLM.Models,
		}.WithDefaults(),
		Tokenizer: tokenizer.NewResolver(cfg.LLM.UseTiktoken),
		Retry: retry.Policy{
			MaxAttempts:  retry.DefaultPolicy().MaxAttempts,
			InitialDelay: cfg.LLM.Retry.InitialDelay,
			MaxDelay:     cfg.LLM.Retry.MaxDelay,
			Multiplier:   cfg.LLM.Retry.Multiplier,
			Jitter:       true,
		},
		Metrics: a.metrics,
		Logger:  a.logger,
	}

	if cfg.LLM.BaseURL == "" && cfg.LLM.APIKey == "" {
		// 没有模型时仍可启动，会话会以 ErrNoLLMClient 失败
		a.logger.Warn("llm not configured, conversations will fail")
		return deps, nil
	}
	if cfg.LLM.Breaker.MaxFailures < 0 {
		return deps, errors.New("llm.breaker.max_failures must not be negative")
	}

	health := llm.NewModelHealth(llm.HealthConfig{
		MaxFailures: uint32(cfg.LLM.Breaker.MaxFailures),
		OpenTimeout: cfg.LLM.Breaker.OpenTimeout,
	}, a.logger)
	raw := openai.New(openai.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
		Models:  cfg.LLM.Models,
	}, a.logger)
	client := llm.NewResilientClient(raw, health, a.metrics, a.logger)

	deps.LLM = client
	deps.Selector = llm.NewModelSelector(client,
		llm.WithRoster(cfg.LLM.Models...),
		llm.WithPriority(cfg.LLM.Priority),
		llm.WithHealth(health),
		llm.WithSelectorLogger(a.logger))
	return deps, nil
}

// start 启动后台任务
func (a *app) start() {
	if a.janitor != nil {
		a.janitor.Start()
	}
}

// close 逆序释放资源
func (a *app) close(ctx context.Context) {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.logger.Warn("close stores", zap.Error(err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("close database pool", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
}
