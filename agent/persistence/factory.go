package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/internal/database"
)

// Stores 一组计划与消息存储以及它们共享的连接
type Stores struct {
	Type     StoreType
	Plans    memory.GptsPlansMemory
	Messages memory.GptsMessageMemory

	ping    func(ctx context.Context) error
	closers []func() error
}

// Ping checks if the backing connection is healthy
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close 关闭底层连接
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type factoryOptions struct {
	gormDB  *gorm.DB
	pool    *database.PoolManager
	redis   redis.UniversalClient
	mongoDB *mongo.Database
}

// FactoryOption 注入已有连接，通常用于测试
type FactoryOption func(*factoryOptions)

// WithGormDB 使用已有的 GORM 连接
func WithGormDB(db *gorm.DB) FactoryOption {
	return func(o *factoryOptions) { o.gormDB = db }
}

// WithPool 使用连接池的 GORM 连接，计划的多行写入经 PoolManager.Transact 执行
func WithPool(pm *database.PoolManager) FactoryOption {
	return func(o *factoryOptions) {
		o.pool = pm
		o.gormDB = pm.DB()
	}
}

// WithRedisClient 使用已有的 Redis 客户端
func WithRedisClient(client redis.UniversalClient) FactoryOption {
	return func(o *factoryOptions) { o.redis = client }
}

// WithMongoDatabase 使用已有的 Mongo 数据库
func WithMongoDatabase(db *mongo.Database) FactoryOption {
	return func(o *factoryOptions) { o.mongoDB = db }
}

// NewStores creates plan and message stores based on the configuration
func NewStores(ctx context.Context, config StoreConfig, logger *zap.Logger, opts ...FactoryOption) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &factoryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if config.Retry.MaxRetries == 0 && config.Retry.InitialBackoff == 0 {
		config.Retry = DefaultRetryConfig()
	}

	var (
		stores *Stores
		err    error
	)
	switch config.Type {
	case "", StoreTypeMemory:
		plans, messages := memory.NewInMemoryPlans(), memory.NewInMemoryMessages()
		stores = &Stores{Plans: plans, Messages: messages, closers: []func() error{plans.Close, messages.Close}}
	case StoreTypeRedis:
		stores, err = newRedisStores(ctx, config, o)
	case StoreTypeSQL:
		stores, err = newSQLStores(config, o, logger)
	case StoreTypeMongo:
		stores, err = newMongoStores(ctx, config, o)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	if stores.Type == "" {
		stores.Type = config.Type
	}
	if stores.Type == "" {
		stores.Type = StoreTypeMemory
	}
	logger.Info("gpts stores initialized", zap.String("type", string(stores.Type)))
	return stores, nil
}

func newRedisStores(ctx context.Context, config StoreConfig, o *factoryOptions) (*Stores, error) {
	client := o.redis
	var closers []func() error
	if client == nil {
		c, err := NewRedisClient(ctx, config.Redis)
		if err != nil {
			return nil, err
		}
		client = c
		closers = append(closers, c.Close)
	}
	return &Stores{
		Plans:    NewRedisPlans(client, config),
		Messages: NewRedisMessages(client, config),
		ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
		closers:  closers,
	}, nil
}

func newSQLStores(config StoreConfig, o *factoryOptions, logger *zap.Logger) (*Stores, error) {
	db := o.gormDB
	var closers []func() error
	if db == nil {
		opened, err := database.Open(database.Config{Driver: config.SQL.Driver, DSN: config.SQL.DSN}, logger)
		if err != nil {
			return nil, err
		}
		db = opened
		closers = append(closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	if config.SQL.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("auto migrate gpts tables: %w", err)
		}
	}
	return &Stores{
		Plans:    newSQLPlans(db, o.pool),
		Messages: NewSQLMessages(db),
		ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		closers: closers,
	}, nil
}

func newSQLPlans(db *gorm.DB, pool *database.PoolManager) *SQLPlans {
	if pool == nil {
		return NewSQLPlans(db)
	}
	return NewSQLPlans(db, UseTransactor(pool))
}

func newMongoStores(ctx context.Context, config StoreConfig, o *factoryOptions) (*Stores, error) {
	db := o.mongoDB
	var closers []func() error
	if db == nil {
		client, d, err := NewMongoDatabase(ctx, config.Mongo)
		if err != nil {
			return nil, err
		}
		db = d
		closers = append(closers, func() error { return client.Disconnect(context.Background()) })
	}
	plans, err := NewMongoPlans(ctx, db)
	if err != nil {
		return nil, err
	}
	messages, err := NewMongoMessages(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Plans:    plans,
		Messages: messages,
		ping:     func(ctx context.Context) error { return db.Client().Ping(ctx, nil) },
		closers:  closers,
	}, nil
}
