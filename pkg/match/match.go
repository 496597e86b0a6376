// Package match 提供Ant风格的路径模式匹配，用于白名单和管理路径规则。
package match

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Match 单个模式匹配
// 支持 * 匹配单个路径段、** 匹配任意多个路径段
func Match(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err != nil {
		// 非法模式视为不匹配
		return false
	}
	return ok
}

// RuleSet 有序的路径模式集合
// 进程启动时从配置加载，请求期间只读
type RuleSet struct {
	patterns []string
}

// NewRuleSet 创建模式集合
func NewRuleSet(patterns []string) *RuleSet {
	ps := make([]string, len(patterns))
	copy(ps, patterns)
	return &RuleSet{patterns: ps}
}

// Match 按声明顺序逐个匹配，任一命中即为命中
func (r *RuleSet) Match(path string) bool {
	for _, pattern := range r.patterns {
		if Match(pattern, path) {
			return true
		}
	}
	return false
}

// Empty 集合是否为空
func (r *RuleSet) Empty() bool {
	return len(r.patterns) == 0
}

// Patterns 返回模式列表副本
func (r *RuleSet) Patterns() []string {
	ps := make([]string, len(r.patterns))
	copy(ps, r.patterns)
	return ps
}
