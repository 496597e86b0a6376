// Package middleware 提供各服务共用的fiber中间件。
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/oauth2"
	"github.com/goiam/pkg/response"
	"github.com/goiam/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// 网关注入的身份头
const (
	HeaderUserID      = "X-User-Id"
	HeaderUsername    = "X-Username"
	HeaderRoles       = "X-User-Roles"
	HeaderPermissions = "X-User-Permissions"
)

// ExtractToken 按配置顺序提取Token：Header优先，其次query参数
func ExtractToken(c *fiber.Ctx, cfg *config.AuthConfig) string {
	token := c.Get(cfg.TokenHeader)
	if token != "" {
		if !strings.HasPrefix(token, cfg.TokenPrefix) {
			return ""
		}
		return strings.TrimPrefix(token, cfg.TokenPrefix)
	}
	return c.Query(cfg.TokenParam)
}

// JWTAuth JWT认证中间件
func JWTAuth(codec *auth.TokenCodec, cfg *config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c, cfg)
		if token == "" {
			return response.Error(c, 401, errors.ErrTokenMissing.Message)
		}

		result := codec.Verify(token)
		if !result.Valid {
			if result.Expired {
				return response.Error(c, 401, errors.ErrTokenExpired.Message)
			}
			return response.Error(c, 401, "无效的认证令牌")
		}

		// 将用户信息存入上下文
		c.Locals("userId", result.Claims.Subject)
		c.Locals("username", result.Claims.Username)
		c.Locals("roles", result.Claims.Roles)
		c.Locals("permissions", result.Claims.Permissions)
		c.Locals("claims", result.Claims)

		return c.Next()
	}
}

// IdentityFromGateway 从网关注入的请求头还原用户身份
// 仅在服务只接受来自网关的流量时使用
func IdentityFromGateway() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID := c.Get(HeaderUserID); userID != "" {
			c.Locals("userId", userID)
			c.Locals("username", c.Get(HeaderUsername))
			if roles := c.Get(HeaderRoles); roles != "" {
				c.Locals("roles", strings.Split(roles, ","))
			}
			if perms := c.Get(HeaderPermissions); perms != "" {
				c.Locals("permissions", strings.Split(perms, ","))
			}
		}
		return c.Next()
	}
}

// ClientAuth 服务间调用认证中间件
// 自省Bearer令牌并校验scope覆盖，用于保护内部API
func ClientAuth(introspector oauth2.Introspector, requiredScopes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return response.Error(c, 401, errors.ErrTokenMissing.Message)
		}
		token := strings.TrimPrefix(header, "Bearer ")

		result, err := introspector.Introspect(c.Context(), token)
		if err != nil {
			logger.Error("令牌自省失败", zap.Error(err), zap.String("path", c.Path()))
			return response.Error(c, 500, "令牌校验失败")
		}
		if !result.Active {
			return response.Error(c, 401, "令牌无效或已过期")
		}

		if !oauth2.ScopesContain(result.Scopes(), requiredScopes) {
			return response.Error(c, 403, errors.ErrScopeExceeded.Message)
		}

		c.Locals("clientId", result.ClientID)
		c.Locals("scopes", result.Scopes())

		return c.Next()
	}
}

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				_ = response.Error(c, 500, "服务器内部错误")
			}
		}()
		return c.Next()
	}
}

// Cors 跨域中间件
func Cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := c.Method()
		origin := c.Get("Origin")

		if origin != "" {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
			c.Set("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")
			c.Set("Access-Control-Allow-Credentials", "true")
		}

		if method == "OPTIONS" {
			return c.SendStatus(204)
		}

		return c.Next()
	}
}

// RateLimiter 限流中间件（令牌桶）
type RateLimiter struct {
	rate     int           // 每秒请求数
	burst    int           // 突发请求数
	tokens   chan struct{} // 令牌桶
	interval time.Duration
	onLimit  func() // 限流命中回调
}

// NewRateLimiter 创建限流器
func NewRateLimiter(rate, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:     rate,
		burst:    burst,
		tokens:   make(chan struct{}, burst),
		interval: time.Second / time.Duration(rate),
	}

	// 初始化令牌桶
	for i := 0; i < burst; i++ {
		rl.tokens <- struct{}{}
	}

	// 启动令牌补充协程
	go rl.refillTokens()

	return rl
}

// OnLimit 设置限流命中回调
func (rl *RateLimiter) OnLimit(fn func()) *RateLimiter {
	rl.onLimit = fn
	return rl
}

func (rl *RateLimiter) refillTokens() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for range ticker.C {
		select {
		case rl.tokens <- struct{}{}:
		default:
		}
	}
}

// Middleware 限流中间件
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		select {
		case <-rl.tokens:
			return c.Next()
		default:
			if rl.onLimit != nil {
				rl.onLimit()
			}
			return response.Error(c, 429, "请求过于频繁，请稍后重试")
		}
	}
}

// RequestID 请求ID中间件
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = utils.UUID()
		}
		c.Locals("requestId", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// ErrorHandler 统一错误处理中间件
func ErrorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			switch e := err.(type) {
			case *errors.AppError:
				_ = response.Error(c, e.Code, e.Message)
			case *fiber.Error:
				_ = response.Error(c, e.Code, e.Message)
			default:
				_ = response.Error(c, 500, "服务器内部错误")
			}
			return nil
		}
		return nil
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *fiber.Ctx) int64 {
	userID := c.Locals("userId")
	if userID == nil {
		return 0
	}
	id, _ := strconv.ParseInt(userID.(string), 10, 64)
	return id
}

// GetUsername 从上下文获取用户名
func GetUsername(c *fiber.Ctx) string {
	username := c.Locals("username")
	if username == nil {
		return ""
	}
	return username.(string)
}

// GetRoles 从上下文获取角色编码列表
func GetRoles(c *fiber.Ctx) []string {
	roles := c.Locals("roles")
	if roles == nil {
		return nil
	}
	return roles.([]string)
}

// GetPermissions 从上下文获取权限标识列表
func GetPermissions(c *fiber.Ctx) []string {
	permissions := c.Locals("permissions")
	if permissions == nil {
		return nil
	}
	return permissions.([]string)
}

// GetClientID 从上下文获取调用方客户端ID
func GetClientID(c *fiber.Ctx) string {
	clientID := c.Locals("clientId")
	if clientID == nil {
		return ""
	}
	return clientID.(string)
}
