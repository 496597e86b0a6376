package oauth2

import (
	"net/http"
	"strings"

	"github.com/goiam/pkg/config"
)

// Transport 为内部API请求自动附加Bearer令牌的RoundTripper
// 仅对路径命中内部前缀的请求附加，其余请求原样透传
type Transport struct {
	Base   http.RoundTripper
	Tokens *ClientTokenCache
	cfg    *config.OAuth2CallerConfig
}

// NewTransport 创建内部调用Transport
func NewTransport(tokens *ClientTokenCache, cfg *config.OAuth2CallerConfig) *Transport {
	return &Transport{
		Base:   http.DefaultTransport,
		Tokens: tokens,
		cfg:    cfg,
	}
}

// NewHTTPClient 创建带内部令牌注入的HTTP客户端
func NewHTTPClient(tokens *ClientTokenCache, cfg *config.OAuth2CallerConfig) *http.Client {
	return &http.Client{
		Transport: NewTransport(tokens, cfg),
		Timeout:   cfg.RequestTimeoutDuration(),
	}
}

// internalPrefix 内部API前缀
func (t *Transport) internalPrefix() string {
	if t.cfg.InternalPrefix != "" {
		return t.cfg.InternalPrefix
	}
	return "/api/v1/internal"
}

// base 底层RoundTripper
func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip 实现http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.cfg.Enabled || !strings.HasPrefix(req.URL.Path, t.internalPrefix()) {
		return t.base().RoundTrip(req)
	}

	token, err := t.Tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}

	// 克隆请求，RoundTripper不得修改原始请求
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base().RoundTrip(clone)
	if err != nil {
		return nil, err
	}

	// 401说明缓存令牌已失效，失效后重试一次
	// 带体请求仅在可重放（GetBody非空）时重试
	if resp.StatusCode == http.StatusUnauthorized && (req.Body == nil || req.GetBody != nil) {
		resp.Body.Close()
		t.Tokens.Invalidate()

		token, err = t.Tokens.Token(req.Context())
		if err != nil {
			return nil, err
		}

		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			retry.Body, err = req.GetBody()
			if err != nil {
				return nil, err
			}
		}
		retry.Header.Set("Authorization", "Bearer "+token)
		return t.base().RoundTrip(retry)
	}

	return resp, nil
}
