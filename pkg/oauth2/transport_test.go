package oauth2

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportAttachesTokenOnInternalPaths(t *testing.T) {
	var issuerCalls atomic.Int64
	issuer := newIssuerServer(t, 3600, &issuerCalls)
	defer issuer.Close()

	var gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	cfg := newCallerConfig(issuer.URL)
	cfg.InternalPrefix = "/api/v1/internal"
	client := NewHTTPClient(NewClientTokenCache(cfg), cfg)

	// 内部路径附加令牌
	resp, err := client.Get(backend.URL + "/api/v1/internal/users/1/authorizations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer token-v1", gotAuth)

	// 非内部路径不附加
	gotAuth = ""
	resp, err = client.Get(backend.URL + "/public/info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, gotAuth)
}

func TestTransportRetriesOnUnauthorized(t *testing.T) {
	var issued atomic.Int64
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		token := "token-v1"
		if n > 1 {
			token = "token-v2"
		}
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		})
	}))
	defer issuer.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 旧令牌拒绝，新令牌放行
		if r.Header.Get("Authorization") == "Bearer token-v2" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	cfg := newCallerConfig(issuer.URL)
	cfg.InternalPrefix = "/api/v1/internal"
	client := NewHTTPClient(NewClientTokenCache(cfg), cfg)

	resp, err := client.Get(backend.URL + "/api/v1/internal/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), issued.Load())
}
