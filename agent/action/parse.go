package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// ErrNoJSON 文本中没有合法的 JSON
var ErrNoJSON = errors.New("no JSON value found in model output")

// FindJSONBlocks 找出文本中所有顶层的 JSON 对象或数组。
// 从每个 '{' 或 '[' 尝试配对，类型不匹配、未闭合或不能通过 json.Valid 时从下一个字符重新开始，
// 因此散文里的方括号与 markdown 链接不会吞掉后面的 JSON。
func FindJSONBlocks(text string) []string {
	var blocks []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchBracket(text, i)
		if end < 0 {
			continue
		}
		if candidate := text[i : end+1]; json.Valid([]byte(candidate)) {
			blocks = append(blocks, candidate)
			i = end
		}
	}
	return blocks
}

// matchBracket 返回与 text[start] 配对的闭括号位置，字符串内的括号不计；失配或未闭合返回 -1
func matchBracket(text string, start int) int {
	var (
		closers  []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if closers[len(closers)-1] != c {
				return -1
			}
			closers = closers[:len(closers)-1]
			if len(closers) == 0 {
				return i
			}
		}
	}
	return -1
}

// Schema 已编译的输入 schema
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema 编译 JSON Schema
func CompileSchema(raw []byte) (*Schema, error) {
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// MustCompileSchema 编译失败时 panic，仅用于包级常量 schema
func MustCompileSchema(raw []byte) *Schema {
	s, err := CompileSchema(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate 校验已解码的 JSON 值
func (s *Schema) Validate(v any) error {
	if s == nil {
		return nil
	}
	result := s.compiled.Validate(v)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

// ParseInput 从 LLM 输出中取第一个 JSON 值，按 schema 校验后解码到 out
func ParseInput(aiMessage string, schema *Schema, out any) error {
	blocks := FindJSONBlocks(aiMessage)
	if len(blocks) == 0 {
		return ErrNoJSON
	}
	return DecodeBlock(blocks[0], schema, out)
}

// DecodeBlock 校验并解码单个 JSON 片段
func DecodeBlock(block string, schema *Schema, out any) error {
	var generic any
	if err := json.Unmarshal([]byte(block), &generic); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("model output does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(block), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// Truncate 截断过长的诊断信息
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
