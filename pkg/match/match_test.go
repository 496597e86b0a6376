package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"精确匹配", "/health", "/health", true},
		{"精确不匹配", "/health", "/healthz", false},
		{"单星匹配单段", "/api/*/login", "/api/v1/login", true},
		{"单星不跨段", "/api/*", "/api/v1/login", false},
		{"双星匹配多段", "/api/v1/auth/**", "/api/v1/auth/oauth2/token", true},
		{"双星匹配零段", "/api/v1/auth/**", "/api/v1/auth", true},
		{"双星前缀之外", "/api/v1/auth/**", "/api/v1/users", false},
		{"问号匹配单字符", "/api/v?", "/api/v1", true},
		{"非法模式视为不匹配", "/api/[", "/api/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.path))
		})
	}
}

func TestRuleSet(t *testing.T) {
	rs := NewRuleSet([]string{"/health", "/api/v1/auth/**", "/favicon.ico"})

	assert.True(t, rs.Match("/health"))
	assert.True(t, rs.Match("/api/v1/auth/login"))
	assert.True(t, rs.Match("/api/v1/auth/oauth2/token"))
	assert.False(t, rs.Match("/api/v1/users"))
	assert.False(t, rs.Empty())
}

func TestRuleSetEmpty(t *testing.T) {
	rs := NewRuleSet(nil)

	assert.True(t, rs.Empty())
	assert.False(t, rs.Match("/health"))
}

func TestRuleSetPatternsCopy(t *testing.T) {
	src := []string{"/a", "/b"}
	rs := NewRuleSet(src)

	src[0] = "/changed"
	assert.Equal(t, []string{"/a", "/b"}, rs.Patterns())

	got := rs.Patterns()
	got[0] = "/mutated"
	assert.True(t, rs.Match("/a"))
}
