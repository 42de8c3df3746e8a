package types

// 会话配置默认值
const (
	DefaultMaxChatRound  = 100
	DefaultMaxRetryRound = 10
	DefaultMaxNewTokens  = 2048
	DefaultTemperature   = 0.5
	DefaultLanguage      = "en"
)

// TeamMode 团队协作模式
type TeamMode string

const (
	TeamModeSingleAgent TeamMode = "single_agent"
	TeamModeAutoPlan    TeamMode = "auto_plan"
	TeamModeAwelLayout  TeamMode = "awel_layout"
)

// AgentContext 会话级配置。首条消息发出后不再修改，
// 以值的形式拷贝给参与会话的每个智能体。
type AgentContext struct {
	ConvID        string   `json:"conv_id"`
	Language      string   `json:"language"`
	MaxChatRound  int      `json:"max_chat_round"`
	MaxRetryRound int      `json:"max_retry_round"`
	MaxNewTokens  int      `json:"max_new_tokens"`
	Temperature   float64  `json:"temperature"`
	TeamMode      TeamMode `json:"team_mode,omitempty"`
	Models        []string `json:"models,omitempty"`
}

// NewAgentContext 创建带默认值的会话配置
func NewAgentContext(convID string) AgentContext {
	return AgentContext{
		ConvID:        convID,
		Language:      DefaultLanguage,
		MaxChatRound:  DefaultMaxChatRound,
		MaxRetryRound: DefaultMaxRetryRound,
		MaxNewTokens:  DefaultMaxNewTokens,
		Temperature:   DefaultTemperature,
	}
}

// WithDefaults 为零值字段填充默认值
func (c AgentContext) WithDefaults() AgentContext {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.MaxChatRound <= 0 {
		c.MaxChatRound = DefaultMaxChatRound
	}
	if c.MaxRetryRound < 0 {
		c.MaxRetryRound = DefaultMaxRetryRound
	}
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = DefaultMaxNewTokens
	}
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Models != nil {
		c.Models = append([]string(nil), c.Models...)
	}
	return c
}
