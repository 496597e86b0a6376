// Package login 提供用户登录端点，身份校验委托给核心服务内部API。
package login

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/oauth2"
)

// UserIdentity 核心服务返回的用户身份
type UserIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	DeptID   int64  `json:"deptId"`
	Status   int8   `json:"status"`
}

// Authorizations 核心服务返回的授权集合
type Authorizations struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Menus       []int64  `json:"menus"`
	Depts       []int64  `json:"depts"`
	DataScope   int8     `json:"dataScope"`
}

// envelope 核心服务响应信封
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// CoreClient 核心服务内部API客户端
// 请求经oauth2.Transport自动附加服务间令牌
type CoreClient struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
}

// NewCoreClient 创建核心服务客户端
func NewCoreClient(baseURL string, tokens *oauth2.ClientTokenCache, cfg *config.OAuth2CallerConfig) *CoreClient {
	prefix := cfg.InternalPrefix
	if prefix == "" {
		prefix = "/api/v1/internal"
	}
	return &CoreClient{
		baseURL:    baseURL,
		prefix:     prefix,
		httpClient: oauth2.NewHTTPClient(tokens, cfg),
	}
}

// VerifyUser 校验用户名密码
func (c *CoreClient) VerifyUser(ctx context.Context, username, password string) (*UserIdentity, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	var identity UserIdentity
	if err := c.do(ctx, http.MethodPost, c.prefix+"/users/verify", bytes.NewReader(body), &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetAuthorizations 获取用户的有效授权集合
func (c *CoreClient) GetAuthorizations(ctx context.Context, userID int64) (*Authorizations, error) {
	var authz Authorizations
	path := fmt.Sprintf("%s/users/%d/authorizations", c.prefix, userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &authz); err != nil {
		return nil, err
	}
	return &authz, nil
}

// do 执行请求并解析响应信封
func (c *CoreClient) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, 500, "构造内部请求失败")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, 500, "调用核心服务失败")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, 500, "读取核心服务响应失败")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.Wrap(err, 500, "解析核心服务响应失败")
	}
	if !env.Success {
		return errors.New(env.Code, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, 500, "解析核心服务数据失败")
		}
	}
	return nil
}
