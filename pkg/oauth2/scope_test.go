package oauth2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScopes(t *testing.T) {
	t.Run("空格分隔", func(t *testing.T) {
		scopes, err := ParseScopes("read write internal")
		require.NoError(t, err)
		assert.Equal(t, []string{"read", "write", "internal"}, scopes)
	})

	t.Run("重复去除保持顺序", func(t *testing.T) {
		scopes, err := ParseScopes("read write read")
		require.NoError(t, err)
		assert.Equal(t, []string{"read", "write"}, scopes)
	})

	t.Run("空串返回nil", func(t *testing.T) {
		scopes, err := ParseScopes("  ")
		require.NoError(t, err)
		assert.Nil(t, scopes)
	})

	t.Run("逗号分隔被拒绝", func(t *testing.T) {
		_, err := ParseScopes("read,write")
		assert.Error(t, err)

		_, err = ParseScopes("read, write")
		assert.Error(t, err)
	})
}

func TestScopeRoundTrip(t *testing.T) {
	// parse(format(s)) == s
	for _, scopes := range [][]string{
		{"read"},
		{"read", "write"},
		{"internal", "admin", "read"},
	} {
		parsed, err := ParseScopes(FormatScopes(scopes))
		require.NoError(t, err)
		assert.Equal(t, scopes, parsed)
	}
}

func TestNormalizeScope(t *testing.T) {
	// 不同顺序规范化为同一串
	assert.Equal(t, NormalizeScope("write read"), NormalizeScope("read write"))
	assert.Equal(t, "read write", NormalizeScope("write read read"))
	assert.Equal(t, "", NormalizeScope("   "))
}

func TestScopesContain(t *testing.T) {
	granted := []string{"read", "write", "internal"}

	assert.True(t, ScopesContain(granted, nil))
	assert.True(t, ScopesContain(granted, []string{"read"}))
	assert.True(t, ScopesContain(granted, []string{"read", "internal"}))
	assert.False(t, ScopesContain(granted, []string{"admin"}))
	assert.False(t, ScopesContain([]string{}, []string{"read"}))
}
