// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "en", cfg.Agent.Language)
	assert.Equal(t, 100, cfg.Agent.MaxChatRound)
	assert.Equal(t, 10, cfg.Agent.MaxRetryRound)
	assert.Equal(t, 3, cfg.Agent.MaxRetryCount)

	assert.Equal(t, "memory", cfg.Memory.Store)
	assert.Equal(t, 24*time.Hour, cfg.Memory.Retention)

	assert.Equal(t, 5, cfg.LLM.Breaker.MaxFailures)
	assert.Equal(t, 2.0, cfg.LLM.Retry.Multiplier)

	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "agentteam:", cfg.Redis.KeyPrefix)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, "agentteam", cfg.Mongo.Database)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Empty(t, cfg.Teams)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Memory.Store)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

agent:
  language: zh
  max_chat_round: 20
  temperature: 0.2

llm:
  base_url: http://llm.local/v1
  models: [m1, m2]
  priority:
    default: [m2, m1]
    coder: [m1]
  breaker:
    max_failures: 2

memory:
  store: redis
  retention: 2h

redis:
  host: redis.example.com
  password: secret
  db: 1

teams:
  - name: dev
    mode: auto_plan
    agents:
      - name: Coder
        role: Coder
        goal: write code
        max_retry_count: 1
      - name: Reviewer
        type: assistant
  - name: flow
    mode: awel_layout
    agents:
      - name: A
      - name: B
    layout:
      edges:
        - {from: A, to: B}

log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, "zh", cfg.Agent.Language)
	assert.Equal(t, 20, cfg.Agent.MaxChatRound)
	assert.Equal(t, 0.2, cfg.Agent.Temperature)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 10, cfg.Agent.MaxRetryRound)

	assert.Equal(t, "http://llm.local/v1", cfg.LLM.BaseURL)
	assert.Equal(t, []string{"m2", "m1"}, cfg.LLM.Priority["default"])
	assert.Equal(t, 2, cfg.LLM.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.LLM.Breaker.OpenTimeout)

	assert.Equal(t, "redis", cfg.Memory.Store)
	assert.Equal(t, 2*time.Hour, cfg.Memory.Retention)
	assert.Equal(t, "redis.example.com", cfg.Redis.Host)
	assert.Equal(t, "secret", cfg.Redis.Password)

	require.Len(t, cfg.Teams, 2)
	dev, ok := cfg.Team("dev")
	require.True(t, ok)
	assert.Equal(t, "auto_plan", dev.Mode)
	require.Len(t, dev.Agents, 2)
	require.NotNil(t, dev.Agents[0].MaxRetryCount)
	assert.Equal(t, 1, *dev.Agents[0].MaxRetryCount)
	assert.Nil(t, dev.Agents[1].MaxRetryCount)

	flow, ok := cfg.Team("flow")
	require.True(t, ok)
	assert.Equal(t, []EdgeConfig{{From: "A", To: "B"}}, flow.Layout.Edges)

	_, ok = cfg.Team("missing")
	assert.False(t, ok)

	require.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTTEAM_SERVER_HTTP_PORT", "7777")
	t.Setenv("AGENTTEAM_SERVER_API_KEYS", "a, b")
	t.Setenv("AGENTTEAM_AGENT_MAX_CHAT_ROUND", "15")
	t.Setenv("AGENTTEAM_AGENT_TEMPERATURE", "0.9")
	t.Setenv("AGENTTEAM_LLM_TIMEOUT", "45s")
	t.Setenv("AGENTTEAM_LLM_USE_TIKTOKEN", "true")
	t.Setenv("AGENTTEAM_LLM_BREAKER_MAX_FAILURES", "7")
	t.Setenv("AGENTTEAM_MEMORY_STORE", "sql")
	t.Setenv("AGENTTEAM_DATABASE_DRIVER", "sqlite")
	t.Setenv("AGENTTEAM_REDIS_HOST", "env-redis")
	t.Setenv("AGENTTEAM_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys)
	assert.Equal(t, 15, cfg.Agent.MaxChatRound)
	assert.Equal(t, 0.9, cfg.Agent.Temperature)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.LLM.UseTiktoken)
	assert.Equal(t, 7, cfg.LLM.Breaker.MaxFailures)
	assert.Equal(t, "sql", cfg.Memory.Store)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "env-redis", cfg.Redis.Host)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 8888
agent:
  language: zh
  max_chat_round: 30
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("AGENTTEAM_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTTEAM_AGENT_LANGUAGE", "en")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "en", cfg.Agent.Language)
	// YAML 值保留
	assert.Equal(t, 30, cfg.Agent.MaxChatRound)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTTEAM_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTTEAM_SERVER_HTTP_PORT")
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}
	t.Setenv("AGENTTEAM_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().WithValidator(validator).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoad_Validates(t *testing.T) {
	t.Setenv("AGENTTEAM_MEMORY_STORE", "etcd")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown memory.store")
}

// --- 验证测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "默认配置有效", modify: func(*Config) {}},
		{
			name:    "端口越界",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "最大轮次为零",
			modify:  func(c *Config) { c.Agent.MaxChatRound = 0 },
			wantErr: "max_chat_round",
		},
		{
			name:    "重试轮次为负",
			modify:  func(c *Config) { c.Agent.MaxRetryRound = -1 },
			wantErr: "max_retry_round",
		},
		{
			name:    "温度越界",
			modify:  func(c *Config) { c.Agent.Temperature = 3 },
			wantErr: "temperature",
		},
		{
			name: "团队名重复",
			modify: func(c *Config) {
				team := TeamConfig{Name: "t", Agents: []AgentConfig{{Name: "a"}}}
				c.Teams = []TeamConfig{team, team}
			},
			wantErr: "duplicate name",
		},
		{
			name: "团队没有智能体",
			modify: func(c *Config) {
				c.Teams = []TeamConfig{{Name: "t", Mode: "auto_plan"}}
			},
			wantErr: "at least one agent",
		},
		{
			name: "未知模式",
			modify: func(c *Config) {
				c.Teams = []TeamConfig{{Name: "t", Mode: "swarm", Agents: []AgentConfig{{Name: "a"}}}}
			},
			wantErr: "unknown mode",
		},
		{
			name: "重复智能体",
			modify: func(c *Config) {
				c.Teams = []TeamConfig{{Name: "t", Agents: []AgentConfig{{Name: "a"}, {Name: "a"}}}}
			},
			wantErr: "duplicate agent",
		},
		{
			name: "固定回复缺少触发条件",
			modify: func(c *Config) {
				c.Teams = []TeamConfig{{Name: "t", Agents: []AgentConfig{{Name: "a", Replies: []ReplyConfig{{Content: "ok"}}}}}}
			},
			wantErr: "one of from/role",
		},
		{
			name: "边引用未知智能体",
			modify: func(c *Config) {
				c.Teams = []TeamConfig{{
					Name:   "t",
					Mode:   "awel_layout",
					Agents: []AgentConfig{{Name: "a"}},
					Layout: LayoutConfig{Edges: []EdgeConfig{{From: "a", To: "b"}}},
				}}
			},
			wantErr: "unknown agent",
		},
		{
			name: "资源缺少内容",
			modify: func(c *Config) {
				c.Resources = []ResourceConfig{{Name: "schema"}}
			},
			wantErr: "exactly one of text and file",
		},
		{
			name: "资源类型未知",
			modify: func(c *Config) {
				c.Resources = []ResourceConfig{{Name: "kb", Type: "vector", Text: "x"}}
			},
			wantErr: "unknown type",
		},
		{
			name: "资源名重复",
			modify: func(c *Config) {
				c.Resources = []ResourceConfig{{Name: "kb", Text: "x"}, {Name: "kb", File: "kb.md"}}
			},
			wantErr: "resource kb: duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
		want   string
	}{
		{
			name: "PostgreSQL",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "u", Password: "p", Name: "db", SSLMode: "disable",
			},
			want: "host=localhost port=5432 user=u password=p dbname=db sslmode=disable",
		},
		{
			name: "MySQL",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "root", Password: "p", Name: "db",
			},
			want: "root:p@tcp(localhost:3306)/db?parseTime=true",
		},
		{
			name:   "SQLite",
			config: DatabaseConfig{Driver: "sqlite", Name: "/tmp/test.db"},
			want:   "/tmp/test.db",
		},
		{
			name:   "未知驱动",
			config: DatabaseConfig{Driver: "oracle"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}
