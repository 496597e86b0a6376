package oauth2

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goiam/pkg/cache"
	"github.com/goiam/pkg/errors"
)

// Introspection 令牌自省结果
type Introspection struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Scopes 解析自省结果中的scope列表
func (i *Introspection) Scopes() []string {
	return strings.Fields(i.Scope)
}

// Introspector 令牌自省接口
type Introspector interface {
	Introspect(ctx context.Context, token string) (*Introspection, error)
}

// RemoteIntrospector 调用授权服务自省端点的实现
// 结果短时缓存，降低内部接口每请求一次的自省开销
type RemoteIntrospector struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	cache        *cache.Cache
	cacheTTL     time.Duration
}

// NewRemoteIntrospector 创建远程自省器
func NewRemoteIntrospector(endpoint, clientID, clientSecret string) *RemoteIntrospector {
	return &RemoteIntrospector{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		cache:        cache.NewWithCleanup(time.Minute),
		cacheTTL:     30 * time.Second,
	}
}

// Introspect 查询令牌状态
func (r *RemoteIntrospector) Introspect(ctx context.Context, token string) (*Introspection, error) {
	if v, ok := r.cache.Get(token); ok {
		return v.(*Introspection), nil
	}

	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, 500, "构造自省请求失败")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(r.clientID, r.clientSecret)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, 500, "请求自省端点失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.StatusCode, "自省端点调用失败")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, 500, "读取自省响应失败")
	}

	var result Introspection
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, 500, "解析自省响应失败")
	}

	// 仅缓存active结果，TTL不超过令牌剩余有效期
	if result.Active {
		ttl := r.cacheTTL
		if result.ExpiresAt > 0 {
			remain := time.Until(time.Unix(result.ExpiresAt, 0))
			if remain < ttl {
				ttl = remain
			}
		}
		if ttl > 0 {
			r.cache.Set(token, &result, ttl)
		}
	}

	return &result, nil
}
