package gateway

import (
	"strconv"
	"strings"
	"time"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/match"
	"github.com/goiam/pkg/metrics"
	"github.com/goiam/pkg/middleware"
	"github.com/goiam/pkg/response"
	"github.com/goiam/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// 下游注入的请求头
const (
	HeaderUserID      = "X-User-Id"
	HeaderUsername    = "X-Username"
	HeaderRoles       = "X-User-Roles"
	HeaderPermissions = "X-User-Permissions"
	HeaderRequestPath = "X-Request-Path"
	HeaderMethod      = "X-Request-Method"
	HeaderGatewayTime = "X-Gateway-Time"
)

// Decision 认证流水线裁决，终态为放行或拒绝
type Decision struct {
	Forward bool
	Code    int
	Message string
	Stage   string // 产生裁决的阶段名
	Claims  *auth.Claims
}

// forwarded 放行裁决
func forwarded(stage string, claims *auth.Claims) Decision {
	return Decision{Forward: true, Stage: stage, Claims: claims}
}

// rejected 拒绝裁决
func rejected(stage string, code int, message string) Decision {
	return Decision{Code: code, Message: message, Stage: stage}
}

// authRequest 流水线内流转的请求信息
type authRequest struct {
	Path   string
	Method string
	Token  string
	Claims *auth.Claims
}

// authStage 认证流水线阶段
// done=true时result即为终态裁决，后续阶段不再执行
type authStage struct {
	Name string
	Run  func(f *AuthFilter, req *authRequest) (done bool, result Decision)
}

// pipeline 认证流水线，阶段按声明顺序执行
var pipeline = []authStage{
	{Name: "disabled", Run: (*AuthFilter).stageDisabled},
	{Name: "whitelist", Run: (*AuthFilter).stageWhitelist},
	{Name: "extract", Run: (*AuthFilter).stageExtract},
	{Name: "verify", Run: (*AuthFilter).stageVerify},
	{Name: "admin_role", Run: (*AuthFilter).stageAdminRole},
}

// AuthFilter 网关认证过滤器
type AuthFilter struct {
	cfg        *config.AuthConfig
	codec      *auth.TokenCodec
	whitelist  *match.RuleSet
	adminPaths *match.RuleSet
	counters   *metrics.AuthCounters
}

// NewAuthFilter 创建认证过滤器
func NewAuthFilter(cfg *config.AuthConfig, codec *auth.TokenCodec, counters *metrics.AuthCounters) *AuthFilter {
	return &AuthFilter{
		cfg:        cfg,
		codec:      codec,
		whitelist:  match.NewRuleSet(cfg.Whitelist),
		adminPaths: match.NewRuleSet(cfg.AdminPaths),
		counters:   counters,
	}
}

// Decide 对请求执行认证流水线，返回终态裁决
func (f *AuthFilter) Decide(req *authRequest) Decision {
	for _, stage := range pipeline {
		if done, result := stage.Run(f, req); done {
			return result
		}
	}
	// 所有检查通过
	return forwarded("inject", req.Claims)
}

// stageDisabled 全局开关检查
func (f *AuthFilter) stageDisabled(req *authRequest) (bool, Decision) {
	if !f.cfg.Enabled {
		return true, forwarded("disabled", nil)
	}
	return false, Decision{}
}

// stageWhitelist 白名单检查，按声明顺序匹配
func (f *AuthFilter) stageWhitelist(req *authRequest) (bool, Decision) {
	if f.whitelist.Match(req.Path) {
		return true, forwarded("whitelist", nil)
	}
	return false, Decision{}
}

// stageExtract Token提取：Header优先，其次query参数
func (f *AuthFilter) stageExtract(req *authRequest) (bool, Decision) {
	if req.Token == "" {
		return true, rejected("extract", 401, errors.ErrTokenMissing.Message)
	}
	return false, Decision{}
}

// stageVerify Token验证，过期与其他无效状态区分
func (f *AuthFilter) stageVerify(req *authRequest) (bool, Decision) {
	result := f.codec.Verify(req.Token)
	if result.Valid {
		req.Claims = result.Claims
		return false, Decision{}
	}

	if result.Expired {
		return true, rejected("verify", 401, errors.ErrTokenExpired.Message)
	}

	switch result.Reason {
	case auth.FailureUnsupportedAlgorithm:
		return true, rejected("verify", 401, errors.ErrTokenUnsupported.Message)
	case auth.FailureSignatureMismatch:
		return true, rejected("verify", 401, errors.ErrTokenSignatureInvalid.Message)
	default:
		return true, rejected("verify", 401, errors.ErrTokenMalformed.Message)
	}
}

// stageAdminRole 管理路径角色检查，角色匹配忽略大小写
func (f *AuthFilter) stageAdminRole(req *authRequest) (bool, Decision) {
	if !f.adminPaths.Match(req.Path) {
		return false, Decision{}
	}

	for _, role := range req.Claims.Roles {
		if utils.ContainsFold(f.cfg.AdminRoles, role) {
			return false, Decision{}
		}
	}
	return true, rejected("admin_role", 403, errors.ErrAdminRoleRequired.Message)
}

// Middleware 认证中间件
// 放行时注入身份与网关元数据请求头，拒绝时返回统一错误体
func (f *AuthFilter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := &authRequest{
			Path:   c.Path(),
			Method: c.Method(),
			Token:  middleware.ExtractToken(c, f.cfg),
		}

		decision := f.Decide(req)

		if !decision.Forward {
			f.counters.RecordAuthFailure()
			logger.Info("请求被拒绝",
				zap.String("path", req.Path),
				zap.String("stage", decision.Stage),
				zap.Int("code", decision.Code),
			)
			return response.Error(c, decision.Code, decision.Message)
		}

		// 白名单/未启用放行的请求没有身份信息
		if decision.Claims != nil {
			f.counters.RecordAuthSuccess()
			f.injectHeaders(c, decision.Claims)
		}

		return c.Next()
	}
}

// injectHeaders 注入身份与网关元数据请求头
func (f *AuthFilter) injectHeaders(c *fiber.Ctx, claims *auth.Claims) {
	c.Request().Header.Set(HeaderUserID, claims.Subject)
	c.Request().Header.Set(HeaderUsername, claims.Username)
	c.Request().Header.Set(HeaderRoles, strings.Join(claims.Roles, ","))
	c.Request().Header.Set(HeaderPermissions, strings.Join(claims.Permissions, ","))
	c.Request().Header.Set(HeaderRequestPath, c.Path())
	c.Request().Header.Set(HeaderMethod, c.Method())
	c.Request().Header.Set(HeaderGatewayTime, strconv.FormatInt(time.Now().UnixMilli(), 10))
}
