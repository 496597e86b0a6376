package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goiam/pkg/cache"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenResponse 令牌端点响应
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// errorResponse 令牌端点错误响应
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ClientTokenCache 客户端凭证令牌缓存
// 同一(clientId, scope)并发请求合并为一次签发调用
type ClientTokenCache struct {
	cfg        *config.OAuth2CallerConfig
	httpClient *http.Client
	cache      *cache.Cache
	group      singleflight.Group
}

// NewClientTokenCache 创建令牌缓存
func NewClientTokenCache(cfg *config.OAuth2CallerConfig) *ClientTokenCache {
	return &ClientTokenCache{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		cache: cache.NewWithCleanup(time.Minute),
	}
}

// cacheKey 缓存key，scope规范化后同一组scope共享条目
func (c *ClientTokenCache) cacheKey(scope string) string {
	return fmt.Sprintf("oauth2:token:%s:%s", c.cfg.ClientID, NormalizeScope(scope))
}

// Token 获取配置scope的访问令牌
func (c *ClientTokenCache) Token(ctx context.Context) (string, error) {
	return c.TokenWithScope(ctx, c.cfg.Scope)
}

// TokenWithScope 获取指定scope的访问令牌
// 先查缓存；未命中时经singleflight请求令牌端点，成功后按expires_in减去余量缓存
func (c *ClientTokenCache) TokenWithScope(ctx context.Context, scope string) (string, error) {
	key := c.cacheKey(scope)

	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// 等待期间可能已有协程写入
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}

		resp, err := c.requestToken(ctx, scope)
		if err != nil {
			return nil, err
		}

		// 有效期扣除余量后缓存，余量不足时不缓存
		ttl := time.Duration(resp.ExpiresIn)*time.Second - c.cfg.CacheMarginDuration()
		if ttl > 0 {
			c.cache.Set(key, resp.AccessToken, ttl)
		}
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate 失效配置scope的缓存令牌（下游返回401时调用）
func (c *ClientTokenCache) Invalidate() {
	c.cache.Delete(c.cacheKey(c.cfg.Scope))
}

// InvalidateScope 失效指定scope的缓存令牌
func (c *ClientTokenCache) InvalidateScope(scope string) {
	c.cache.Delete(c.cacheKey(scope))
}

// requestToken 请求令牌端点
func (c *ClientTokenCache) requestToken(ctx context.Context, scope string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	if scope != "" {
		form.Set("scope", scope)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeoutDuration())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, 500, "构造令牌请求失败")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.ErrIssuerTimeout
		}
		return nil, errors.Wrap(err, 500, "请求令牌端点失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, 500, "读取令牌响应失败")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			logger.Warn("令牌签发被拒绝",
				zap.String("clientId", c.cfg.ClientID),
				zap.Int("status", resp.StatusCode),
				zap.String("message", errResp.Message),
			)
			return nil, errors.New(errResp.Code, errResp.Message)
		}
		return nil, errors.New(resp.StatusCode, fmt.Sprintf("令牌端点返回状态 %d", resp.StatusCode))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, errors.Wrap(err, 500, "解析令牌响应失败")
	}
	if token.AccessToken == "" {
		return nil, errors.Internal("令牌响应缺少access_token")
	}

	return &token, nil
}
