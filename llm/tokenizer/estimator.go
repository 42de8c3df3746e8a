package tokenizer

import (
	"unicode"

	"github.com/BaSui01/agentteam/types"
)

// 每条消息的角色与分隔符开销，以及回复起始标记，两种计数器共用
const (
	perMessageOverhead = 4
	replyPrimer        = 3
	defaultMaxTokens   = 4096
)

// wideScripts 中的字符大约每 1.5 个一个 token，其余字符约 4 个一个 token
var wideScripts = []*unicode.RangeTable{unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul}

// EstimatorTokenizer 无需编码表的近似计数，用于非 OpenAI 系模型或离线环境
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer 创建估算器，maxTokens <= 0 时使用 4096
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return estimate(text), nil
}

func estimate(text string) int {
	if text == "" {
		return 0
	}
	wide, narrow := 0, 0
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	n := wide*2/3 + narrow/4
	return max(n, 1)
}

func isWide(r rune) bool {
	if r < 0x2E80 {
		return false
	}
	// 全角标点与 CJK 符号也按宽字符计
	if (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF) {
		return true
	}
	return unicode.IsOneOf(wideScripts, r)
}

func (e *EstimatorTokenizer) CountMessages(messages []types.Message) (int, error) {
	total := replyPrimer
	for _, msg := range messages {
		total += estimate(msg.Content) + perMessageOverhead
	}
	return total, nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }
