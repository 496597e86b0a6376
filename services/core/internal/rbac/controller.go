package rbac

import (
	"context"
	"strconv"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/response"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Controller 内部授权接口控制器
// 仅供其他服务经客户端凭证令牌调用
type Controller struct {
	repo     Repository
	resolver *Resolver
	casbin   *auth.CasbinService
}

// NewController 创建授权接口控制器
func NewController(repo Repository, resolver *Resolver, casbinSvc *auth.CasbinService) *Controller {
	return &Controller{
		repo:     repo,
		resolver: resolver,
		casbin:   casbinSvc,
	}
}

// RegisterRoutes 注册内部路由，clientAuth校验服务间令牌
func (c *Controller) RegisterRoutes(r fiber.Router, clientAuth fiber.Handler) {
	internal := r.Group("/api/v1/internal", clientAuth)
	internal.Post("/users/verify", c.VerifyUser)
	internal.Get("/users/:id/authorizations", c.GetAuthorizations)
	internal.Post("/permissions/check", c.CheckPermission)
}

// verifyRequest 用户校验请求
type verifyRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyUser 校验用户名密码
// 用户不存在与密码错误返回同样的消息
func (c *Controller) VerifyUser(ctx *fiber.Ctx) error {
	var req verifyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}
	if req.Username == "" || req.Password == "" {
		return response.BadRequest(ctx, "用户名和密码不能为空")
	}

	user, err := c.repo.FindUserByUsername(ctx.UserContext(), req.Username)
	if err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}
	if user == nil || !auth.CheckPassword(req.Password, user.Password) {
		return response.Unauthorized(ctx, "用户名或密码错误")
	}

	return response.Success(ctx, fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"nickname": user.Nickname,
		"deptId":   user.DeptID,
		"status":   user.Status,
	})
}

// GetAuthorizations 获取用户的有效授权集合
func (c *Controller) GetAuthorizations(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil || userID <= 0 {
		return response.BadRequest(ctx, "非法的用户ID")
	}

	resolution, err := c.resolver.Resolve(ctx.UserContext(), userID)
	if err != nil {
		return response.Error(ctx, errors.GetCode(err), errors.GetMessage(err))
	}

	return response.Success(ctx, resolution)
}

// checkRequest 权限检查请求
type checkRequest struct {
	UserID   int64  `json:"userId"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// CheckPermission 检查用户对资源的访问权限
func (c *Controller) CheckPermission(ctx *fiber.Ctx) error {
	var req checkRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}
	if req.UserID <= 0 || req.Resource == "" {
		return response.BadRequest(ctx, "缺少必要参数")
	}
	if req.Action == "" {
		req.Action = "GET"
	}

	allowed := c.casbin.CheckUserPermission(req.UserID, req.Resource, req.Action)
	return response.Success(ctx, fiber.Map{"allowed": allowed})
}

// SyncCasbin 将启用角色的权限与用户角色关系同步到casbin
func SyncCasbin(ctx context.Context, repo Repository, casbinSvc *auth.CasbinService) error {
	roles, err := repo.FindEnabledRoles(ctx)
	if err != nil {
		return err
	}

	for _, role := range roles {
		permissions, err := repo.FindRolePermissions(ctx, role.ID)
		if err != nil {
			return err
		}

		policies := make([]auth.Permission, 0, len(permissions))
		for _, p := range permissions {
			if p.Resource == "" {
				continue
			}
			policies = append(policies, auth.Permission{
				Resource: p.Resource,
				Action:   p.Action,
			})
		}

		if err := casbinSvc.SyncRolePermissions(role.Code, policies); err != nil {
			return err
		}
	}

	logger.Info("casbin策略同步完成", zap.Int("roles", len(roles)))
	return nil
}
