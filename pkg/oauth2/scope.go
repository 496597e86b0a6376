// Package oauth2 提供客户端凭证模式的令牌获取、缓存与校验。
package oauth2

import (
	"sort"
	"strings"

	"github.com/goiam/pkg/errors"
)

// ParseScopes 解析空格分隔的scope串
// 仅接受空格分隔，包含逗号视为非法请求
func ParseScopes(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.Contains(raw, ",") {
		return nil, errors.BadRequest("scope必须使用空格分隔")
	}

	fields := strings.Fields(raw)
	seen := make(map[string]struct{}, len(fields))
	scopes := make([]string, 0, len(fields))
	for _, s := range fields {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

// FormatScopes 将scope列表格式化为空格分隔串
func FormatScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// NormalizeScope 规范化scope串：去重、排序后重新拼接
// 用作缓存key，保证同一组scope不同顺序命中同一条目
func NormalizeScope(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(fields))
	scopes := make([]string, 0, len(fields))
	for _, s := range fields {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return strings.Join(scopes, " ")
}

// ScopesContain 检查granted是否覆盖requested的全部scope
func ScopesContain(granted, requested []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
