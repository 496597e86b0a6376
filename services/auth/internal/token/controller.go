package token

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/response"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Controller OAuth2令牌端点控制器
type Controller struct {
	issuer *Issuer
}

// NewController 创建令牌端点控制器
func NewController(issuer *Issuer) *Controller {
	return &Controller{issuer: issuer}
}

// RegisterRoutes 注册路由
func (c *Controller) RegisterRoutes(r fiber.Router) {
	oauth := r.Group("/oauth2")
	oauth.Post("/token", c.Token)
	oauth.Post("/introspect", c.Introspect)
	oauth.Post("/revoke", c.Revoke)
}

// tokenRequest 令牌请求表单
type tokenRequest struct {
	GrantType    string `form:"grant_type"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	Scope        string `form:"scope"`
}

// Token 令牌端点
func (c *Controller) Token(ctx *fiber.Ctx) error {
	var req tokenRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}

	// 客户端凭证也可经Basic认证头传递
	if req.ClientID == "" {
		req.ClientID, req.ClientSecret = parseBasicAuth(ctx.Get("Authorization"))
	}

	if req.GrantType != GrantClientCredentials {
		return response.Error(ctx, 400, "不支持的授权类型: "+req.GrantType)
	}
	if req.ClientID == "" {
		return response.BadRequest(ctx, "缺少client_id")
	}

	result, err := c.issuer.Issue(ctx.UserContext(), req.ClientID, req.ClientSecret, req.Scope)
	if err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}

	// 令牌响应直接返回RFC格式，不走业务信封
	return ctx.JSON(result)
}

// introspectRequest 自省请求表单
type introspectRequest struct {
	Token string `form:"token"`
}

// Introspect 自省端点
func (c *Controller) Introspect(ctx *fiber.Ctx) error {
	var req introspectRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}
	if req.Token == "" {
		return response.BadRequest(ctx, "缺少token")
	}

	result, err := c.issuer.Introspect(ctx.UserContext(), req.Token)
	if err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}

	return ctx.JSON(result)
}

// revokeRequest 撤销请求表单
type revokeRequest struct {
	Token        string `form:"token"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
}

// Revoke 撤销端点，对未知令牌同样返回200
func (c *Controller) Revoke(ctx *fiber.Ctx) error {
	var req revokeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}

	if req.ClientID == "" {
		req.ClientID, req.ClientSecret = parseBasicAuth(ctx.Get("Authorization"))
	}
	if req.Token == "" {
		return response.BadRequest(ctx, "缺少token")
	}

	if err := c.issuer.Revoke(ctx.UserContext(), req.ClientID, req.ClientSecret, req.Token); err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}

	return response.Success(ctx, nil)
}

// parseBasicAuth 解析Basic认证头
func parseBasicAuth(header string) (clientID, clientSecret string) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", ""
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", ""
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// StartSweeper 启动过期令牌定期清理
func StartSweeper(ctx context.Context, store Store, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				count, err := store.SweepExpired(ctx)
				if err != nil {
					logger.Warn("清理过期令牌失败", zap.Error(err))
					continue
				}
				if count > 0 {
					logger.Info("清理过期令牌", zap.Int("count", count))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
