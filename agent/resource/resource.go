// Package resource 定义智能体可绑定的资源：提示词贡献或可调用的工具。
package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Type 资源类型
type Type string

const (
	TypeTool      Type = "tool"
	TypeKnowledge Type = "knowledge"
	TypeDatabase  Type = "database"
	TypeInternet  Type = "internet"
	TypePack      Type = "pack"
)

// ErrToolNotFound 资源包中找不到工具
var ErrToolNotFound = errors.New("tool not found")

// Resource 命名、带类型的能力
type Resource interface {
	Name() string
	Type() Type
	// Prompt 返回注入系统提示词的描述文本
	Prompt(ctx context.Context) (string, error)
}

// Executor 可执行的资源
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Text 纯文本资源，例如一段知识或数据库表结构描述
type Text struct {
	name string
	typ  Type
	text string
}

// NewText 创建文本资源
func NewText(name string, typ Type, text string) *Text {
	return &Text{name: name, typ: typ, text: text}
}

func (t *Text) Name() string { return t.name }
func (t *Text) Type() Type   { return t.typ }

func (t *Text) Prompt(context.Context) (string, error) {
	return fmt.Sprintf("%s(%s):\n%s", t.name, t.typ, t.text), nil
}

// Pack 资源集合
type Pack struct {
	name      string
	resources []Resource
}

// NewPack 创建资源包
func NewPack(name string, resources ...Resource) *Pack {
	return &Pack{name: name, resources: resources}
}

func (p *Pack) Name() string { return p.name }
func (p *Pack) Type() Type   { return TypePack }

// Resources 返回包内资源
func (p *Pack) Resources() []Resource {
	return append([]Resource(nil), p.resources...)
}

// Prompt 拼接所有子资源的提示词
func (p *Pack) Prompt(ctx context.Context) (string, error) {
	parts := make([]string, 0, len(p.resources))
	for _, r := range p.resources {
		s, err := r.Prompt(ctx)
		if err != nil {
			return "", fmt.Errorf("resource %s prompt: %w", r.Name(), err)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Lookup 按名字查找资源（含嵌套包）
func (p *Pack) Lookup(name string) (Resource, bool) {
	for _, r := range p.resources {
		if r.Name() == name {
			return r, true
		}
		if sub, ok := r.(*Pack); ok {
			if found, ok := sub.Lookup(name); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Execute 按名字执行包内工具
func (p *Pack) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r, ok := p.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	exec, ok := r.(Executor)
	if !ok {
		return nil, fmt.Errorf("resource %s is not executable", name)
	}
	return exec.Execute(ctx, args)
}

// Match 在资源列表中找到第一个类型匹配的资源，need 为空时返回 nil
func Match(resources []Resource, need Type) Resource {
	if need == "" {
		return nil
	}
	for _, r := range resources {
		if r.Type() == need {
			return r
		}
	}
	// 工具可能被打包在 pack 中
	if need == TypeTool {
		for _, r := range resources {
			if p, ok := r.(*Pack); ok {
				for _, sub := range p.resources {
					if sub.Type() == TypeTool {
						return p
					}
				}
			}
		}
	}
	return nil
}
