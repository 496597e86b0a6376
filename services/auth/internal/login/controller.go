package login

import (
	"strconv"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/middleware"
	"github.com/goiam/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Controller 登录控制器
type Controller struct {
	core  *CoreClient
	codec *auth.TokenCodec
	cfg   *config.JWTConfig
}

// NewController 创建登录控制器
func NewController(core *CoreClient, codec *auth.TokenCodec, cfg *config.JWTConfig) *Controller {
	return &Controller{
		core:  core,
		codec: codec,
		cfg:   cfg,
	}
}

// RegisterRoutes 注册路由
func (c *Controller) RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler) {
	r.Post("/auth/login", c.Login)
	r.Get("/auth/userinfo", jwtMiddleware, c.UserInfo)
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	*auth.TokenInfo
	UserID   int64    `json:"userId"`
	Username string   `json:"username"`
	Nickname string   `json:"nickname"`
	Roles    []string `json:"roles"`
}

// Login 用户登录
// 身份与授权均来自核心服务，本服务只负责签发JWT
func (c *Controller) Login(ctx *fiber.Ctx) error {
	var req LoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}
	if req.Username == "" || req.Password == "" {
		return response.BadRequest(ctx, "用户名和密码不能为空")
	}

	identity, err := c.core.VerifyUser(ctx.UserContext(), req.Username, req.Password)
	if err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}
	if identity.Status != 1 {
		return response.Forbidden(ctx, "账号已被禁用")
	}

	authz, err := c.core.GetAuthorizations(ctx.UserContext(), identity.ID)
	if err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}

	tokenInfo, err := c.codec.CreateTokenInfo(auth.Claims{
		Username:    identity.Username,
		Roles:       authz.Roles,
		Permissions: authz.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(identity.ID, 10),
		},
	}, c.cfg.ExpireDuration())
	if err != nil {
		return response.ServerError(ctx, "令牌签发失败")
	}

	return response.Success(ctx, &LoginResponse{
		TokenInfo: tokenInfo,
		UserID:    identity.ID,
		Username:  identity.Username,
		Nickname:  identity.Nickname,
		Roles:     authz.Roles,
	})
}

// UserInfo 当前用户信息
func (c *Controller) UserInfo(ctx *fiber.Ctx) error {
	claims := ctx.Locals("claims")
	if claims == nil {
		return response.Unauthorized(ctx, "")
	}

	userClaims := claims.(*auth.Claims)
	return response.Success(ctx, fiber.Map{
		"userId":      middleware.GetUserID(ctx),
		"username":    userClaims.Username,
		"roles":       userClaims.Roles,
		"permissions": userClaims.Permissions,
	})
}
