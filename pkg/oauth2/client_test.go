package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goiam/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIssuerServer 返回记录签发次数的模拟令牌端点
func newIssuerServer(t *testing.T, expiresIn int64, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.Form.Get("grant_type"))

		calls.Add(1)
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "token-v1",
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
			Scope:       r.Form.Get("scope"),
		})
	}))
}

func newCallerConfig(tokenURL string) *config.OAuth2CallerConfig {
	return &config.OAuth2CallerConfig{
		Enabled:      true,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scope:        "internal",
		TokenURL:     tokenURL,
		CacheMargin:  60,
	}
}

func TestTokenCached(t *testing.T) {
	var calls atomic.Int64
	srv := newIssuerServer(t, 3600, &calls)
	defer srv.Close()

	tc := NewClientTokenCache(newCallerConfig(srv.URL))

	for i := 0; i < 5; i++ {
		token, err := tc.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-v1", token)
	}

	// 5次调用只签发1次
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenSingleFlight(t *testing.T) {
	var calls atomic.Int64
	srv := newIssuerServer(t, 3600, &calls)
	defer srv.Close()

	tc := NewClientTokenCache(newCallerConfig(srv.URL))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			token, err := tc.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-v1", token)
		}()
	}
	wg.Wait()

	// N个并发调用合并为1次签发
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenShortTTLNotCached(t *testing.T) {
	var calls atomic.Int64
	// 有效期低于缓存余量，不应缓存
	srv := newIssuerServer(t, 30, &calls)
	defer srv.Close()

	tc := NewClientTokenCache(newCallerConfig(srv.URL))

	_, err := tc.Token(context.Background())
	require.NoError(t, err)
	_, err = tc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
}

func TestTokenInvalidate(t *testing.T) {
	var calls atomic.Int64
	srv := newIssuerServer(t, 3600, &calls)
	defer srv.Close()

	tc := NewClientTokenCache(newCallerConfig(srv.URL))

	_, err := tc.Token(context.Background())
	require.NoError(t, err)

	tc.Invalidate()

	_, err = tc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
}

func TestTokenIssuerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    401,
			"message": "客户端认证失败",
			"success": false,
		})
	}))
	defer srv.Close()

	tc := NewClientTokenCache(newCallerConfig(srv.URL))

	_, err := tc.Token(context.Background())
	assert.Error(t, err)
}

func TestScopeKeyNormalization(t *testing.T) {
	var calls atomic.Int64
	srv := newIssuerServer(t, 3600, &calls)
	defer srv.Close()

	tc := NewClientTokenCache(newCallerConfig(srv.URL))

	_, err := tc.TokenWithScope(context.Background(), "read write")
	require.NoError(t, err)
	// scope顺序不同命中同一缓存条目
	_, err = tc.TokenWithScope(context.Background(), "write read")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
}
