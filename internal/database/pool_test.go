package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/agentteam/internal/metrics"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// gorm.Open 会先 ping 一次
	mock.ExpectPing()
	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, gormDB, manager.DB())
	assert.Equal(t, testPoolConfig(), manager.config)
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewPoolManager_InvalidConfig(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	_, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 5}, nil)
	assert.Error(t, err)

	_, err = NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	mock.ExpectPing()
	assert.NoError(t, manager.Ping(ctx))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_CheckOnceReportsMetrics(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	collector := metrics.NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop(), WithMetrics(collector, "gpts"))
	require.NoError(t, err)

	mock.ExpectPing()
	manager.checkOnce()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Transact(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	assert.NoError(t, manager.Transact(ctx, func(tx *gorm.DB) error { return nil }))

	// 非瞬时错误回滚后直接返回
	calls := 0
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.Transact(ctx, func(tx *gorm.DB) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_TransactReplaysConflicts(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	cfg := testPoolConfig()
	cfg.TxMaxAttempts = 2
	cfg.TxBackoff = time.Millisecond
	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	deadlock := assertErr("ERROR: deadlock detected (SQLSTATE 40P01)")

	calls := 0
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	err = manager.Transact(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return deadlock
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// 超过尝试次数后放弃
	calls = 0
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.Transact(context.Background(), func(tx *gorm.DB) error {
		calls++
		return deadlock
	})
	assert.ErrorIs(t, err, deadlock)
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.Equal(t, 2, calls)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_TransactStopsOnCancel(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	cfg := testPoolConfig()
	cfg.TxMaxAttempts = 5
	cfg.TxBackoff = time.Hour
	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.Transact(ctx, func(tx *gorm.DB) error {
		cancel()
		return assertErr("driver: bad connection")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1, HealthCheckInterval: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	assert.NoError(t, manager.Close())
	assert.NoError(t, manager.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Error(t, manager.Ping(context.Background()))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(assertErr("Deadlock found when trying to get lock")))
	assert.True(t, Retryable(assertErr("pq: could not serialize access (SQLSTATE 40001)")))
	assert.True(t, Retryable(fmt.Errorf("exec: %w", driver.ErrBadConn)))
	assert.True(t, Retryable(assertErr("Lock wait timeout exceeded")))
	assert.False(t, Retryable(assertErr("duplicate key value")))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{"valid config", testPoolConfig(), false},
		{"invalid max open conns", PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, true},
		{"invalid max idle conns", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, true},
		{"idle > open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, true},
		{"negative tx attempts", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1, TxMaxAttempts: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "pg", "mysql", "mariadb", "sqlite", "sqlite3"} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}
	_, err := Dialector("oracle", "dsn")
	assert.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, nil)
	assert.Error(t, err)
}
