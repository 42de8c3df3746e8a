package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 agentteam 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Agent     AgentDefaults   `yaml:"agent" env:"AGENT"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Resources []ResourceConfig `yaml:"resources" env:"-"`
	Teams     []TeamConfig     `yaml:"teams" env:"-"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需要覆盖一次完整的会话运行
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API Key 列表，为空时不校验
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWT HMAC 密钥，为空时不启用 JWT
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// JWT issuer，为空时不校验
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	// 每个客户端的限流
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// AgentDefaults 会话默认参数，对应 types.AgentContext
type AgentDefaults struct {
	Language      string  `yaml:"language" env:"LANGUAGE"`
	MaxChatRound  int     `yaml:"max_chat_round" env:"MAX_CHAT_ROUND"`
	MaxRetryRound int     `yaml:"max_retry_round" env:"MAX_RETRY_ROUND"`
	MaxNewTokens  int     `yaml:"max_new_tokens" env:"MAX_NEW_TOKENS"`
	Temperature   float64 `yaml:"temperature" env:"TEMPERATURE"`
	// MaxRetryCount 工作智能体的自我纠错次数
	MaxRetryCount int `yaml:"max_retry_count" env:"MAX_RETRY_COUNT"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// OpenAI 兼容接口地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	// 可用模型，为空时使用服务端 /models 返回的全部模型
	Models []string `yaml:"models" env:"MODELS"`
	// 按智能体名的模型优先级，"default" 为兜底
	Priority map[string][]string `yaml:"priority" env:"-"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否使用 tiktoken 计数，关闭时使用估算
	UseTiktoken bool          `yaml:"use_tiktoken" env:"USE_TIKTOKEN"`
	Breaker     BreakerConfig `yaml:"breaker" env:"BREAKER"`
	Retry       RetryConfig   `yaml:"retry" env:"RETRY"`
}

// BreakerConfig 单模型熔断配置
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures" env:"MAX_FAILURES"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
}

// RetryConfig LLM 调用退避
type RetryConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
}

// MemoryConfig 计划与消息存储
type MemoryConfig struct {
	// 存储类型: memory, redis, sql, mongo
	Store string `yaml:"store" env:"STORE"`
	// 清理任务 cron 表达式
	CleanupSchedule string `yaml:"cleanup_schedule" env:"CLEANUP_SCHEDULE"`
	// 会话空闲多久后清理，0 表示不清理
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host      string `yaml:"host" env:"HOST"`
	Port      int    `yaml:"port" env:"PORT"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时用 GORM 建表
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// MongoConfig Mongo 配置
type MongoConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	Database string `yaml:"database" env:"DATABASE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ResourceConfig 文本资源（知识、表结构说明等），智能体按名字引用
type ResourceConfig struct {
	Name string `yaml:"name"`
	// Type: knowledge（默认）, database, internet
	Type string `yaml:"type"`
	// Text 与 File 二选一
	Text string `yaml:"text"`
	File string `yaml:"file"`
}

// TeamConfig 团队定义
type TeamConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Mode: single_agent, auto_plan, awel_layout
	Mode   string        `yaml:"mode"`
	Agents []AgentConfig `yaml:"agents"`
	// Layout 仅 awel_layout 使用
	Layout LayoutConfig `yaml:"layout"`
}

// LayoutConfig 有向边 from → to
type LayoutConfig struct {
	Edges []EdgeConfig `yaml:"edges"`
}

// EdgeConfig 一条边
type EdgeConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// AgentConfig 团队中的一个智能体
type AgentConfig struct {
	// Name 团队内唯一，也是消息中的 sender/receiver
	Name string `yaml:"name"`
	// Type 在 Registry 中注册的类型，缺省为 assistant
	Type        string   `yaml:"type"`
	Role        string   `yaml:"role"`
	Goal        string   `yaml:"goal"`
	Desc        string   `yaml:"desc"`
	Constraints []string `yaml:"constraints"`
	// Resources 绑定的资源名
	Resources []string `yaml:"resources"`
	// MaxRetryCount 为 nil 时使用 agent.max_retry_count
	MaxRetryCount *int `yaml:"max_retry_count"`
	// Replies 按顺序匹配的固定回复
	Replies []ReplyConfig `yaml:"replies"`
}

// ReplyConfig 发送方名字为 From 或角色为 Role 时直接回复 Content
type ReplyConfig struct {
	From    string `yaml:"from"`
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTTEAM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// Load 从文件（可为空）与环境变量加载并校验
func Load(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Agent.MaxChatRound <= 0 {
		errs = append(errs, "agent.max_chat_round must be positive")
	}
	if c.Agent.MaxRetryRound < 0 {
		errs = append(errs, "agent.max_retry_round must not be negative")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "agent.temperature must be between 0 and 2")
	}
	switch c.Memory.Store {
	case "memory", "redis", "sql", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown memory.store %q", c.Memory.Store))
	}

	resources := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("resources[%d]: name is required", i))
			continue
		}
		if resources[r.Name] {
			errs = append(errs, fmt.Sprintf("resource %s: duplicate name", r.Name))
		}
		resources[r.Name] = true
		switch r.Type {
		case "", "knowledge", "database", "internet":
		default:
			errs = append(errs, fmt.Sprintf("resource %s: unknown type %q", r.Name, r.Type))
		}
		if (r.Text == "") == (r.File == "") {
			errs = append(errs, fmt.Sprintf("resource %s: exactly one of text and file is required", r.Name))
		}
	}

	seen := make(map[string]bool, len(c.Teams))
	for i, team := range c.Teams {
		if team.Name == "" {
			errs = append(errs, fmt.Sprintf("teams[%d]: name is required", i))
			continue
		}
		if seen[team.Name] {
			errs = append(errs, fmt.Sprintf("team %s: duplicate name", team.Name))
		}
		seen[team.Name] = true
		errs = append(errs, team.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (t TeamConfig) validate() []string {
	var errs []string
	switch t.Mode {
	case "", "single_agent", "auto_plan", "awel_layout":
	default:
		errs = append(errs, fmt.Sprintf("team %s: unknown mode %q", t.Name, t.Mode))
	}
	if len(t.Agents) == 0 {
		errs = append(errs, fmt.Sprintf("team %s: at least one agent is required", t.Name))
	}
	names := make(map[string]bool, len(t.Agents))
	for _, a := range t.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("team %s: agent name is required", t.Name))
			continue
		}
		if names[a.Name] {
			errs = append(errs, fmt.Sprintf("team %s: duplicate agent %s", t.Name, a.Name))
		}
		names[a.Name] = true
		for i, r := range a.Replies {
			if r.Content == "" || (r.From == "" && r.Role == "") {
				errs = append(errs, fmt.Sprintf("team %s: agent %s reply %d needs content and one of from/role", t.Name, a.Name, i))
			}
		}
	}
	for _, e := range t.Layout.Edges {
		if !names[e.From] || !names[e.To] {
			errs = append(errs, fmt.Sprintf("team %s: edge %s -> %s references unknown agent", t.Name, e.From, e.To))
		}
	}
	return errs
}

// Team 按名称查找团队
func (c *Config) Team(name string) (TeamConfig, bool) {
	for _, t := range c.Teams {
		if t.Name == name {
			return t, true
		}
	}
	return TeamConfig{}, false
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
