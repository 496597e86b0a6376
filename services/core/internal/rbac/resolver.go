package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/cache"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/utils"
	"github.com/goiam/services/core/internal/model"
	"go.uber.org/zap"
)

// Resolution 用户的有效授权集合
type Resolution struct {
	UserID      int64    `json:"userId"`
	Roles       []string `json:"roles"`       // 启用角色的编码
	Permissions []string `json:"permissions"` // 权限编码并集
	Menus       []int64  `json:"menus"`       // 菜单ID并集
	Depts       []int64  `json:"depts"`       // 数据范围内的部门ID
	DataScope   int8     `json:"dataScope"`   // 合并后的数据范围
}

// Resolver 授权解析器
type Resolver struct {
	repo     Repository
	cache    *cache.Cache
	cacheTTL time.Duration
}

// NewResolver 创建授权解析器
func NewResolver(repo Repository) *Resolver {
	return &Resolver{
		repo:     repo,
		cache:    cache.NewWithCleanup(time.Minute),
		cacheTTL: 30 * time.Second,
	}
}

// Resolve 解析用户的有效授权
// 仅启用角色参与并集，禁用角色即使已分配也不贡献任何授权
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Resolution, error) {
	cacheKey := fmt.Sprintf("rbac:resolution:%d", userID)
	if v, ok := r.cache.Get(cacheKey); ok {
		return v.(*Resolution), nil
	}

	user, err := r.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, 500, "查询用户失败")
	}
	if user == nil {
		return nil, errors.ErrNotFound.WithMessage("用户不存在")
	}

	allRoles, err := r.repo.FindUserRoles(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, 500, "查询用户角色失败")
	}

	enabled := utils.Filter(allRoles, func(role model.Role) bool {
		return role.Enabled()
	})

	resolution := &Resolution{
		UserID:      userID,
		Roles:       make([]string, 0, len(enabled)),
		Permissions: []string{},
		Menus:       []int64{},
		Depts:       []int64{},
	}

	scopes := make([]auth.DataScope, 0, len(enabled))
	customDepts := make([]int64, 0)

	for _, role := range enabled {
		resolution.Roles = append(resolution.Roles, role.Code)
		scopes = append(scopes, auth.DataScope(role.DataScope))

		permissions, err := r.repo.FindRolePermissions(ctx, role.ID)
		if err != nil {
			return nil, errors.Wrap(err, 500, "查询角色权限失败")
		}
		for _, p := range permissions {
			resolution.Permissions = append(resolution.Permissions, p.Code)
		}

		menus, err := r.repo.FindRoleMenus(ctx, role.ID)
		if err != nil {
			return nil, errors.Wrap(err, 500, "查询角色菜单失败")
		}
		for _, m := range menus {
			resolution.Menus = append(resolution.Menus, m.ID)
		}

		if auth.DataScope(role.DataScope) == auth.DataScopeCustom {
			depts, err := r.repo.FindRoleDepts(ctx, role.ID)
			if err != nil {
				return nil, errors.Wrap(err, 500, "查询角色部门失败")
			}
			for _, d := range depts {
				customDepts = append(customDepts, d.ID)
			}
		}
	}

	resolution.Permissions = utils.Unique(resolution.Permissions)
	resolution.Menus = utils.Unique(resolution.Menus)

	// 多角色取最宽松的数据范围
	merged := auth.MergeDataScopes(scopes)
	resolution.DataScope = int8(merged)

	switch merged {
	case auth.DataScopeCustom:
		resolution.Depts = utils.Unique(customDepts)
	case auth.DataScopeDept:
		if user.DeptID > 0 {
			resolution.Depts = []int64{user.DeptID}
		}
	case auth.DataScopeDeptAndChild:
		if user.DeptID > 0 {
			depts, err := r.repo.FindDeptDescendants(ctx, user.DeptID)
			if err != nil {
				return nil, errors.Wrap(err, 500, "查询部门层级失败")
			}
			resolution.Depts = depts
		}
	}

	logger.Debug("解析用户授权",
		zap.Int64("userId", userID),
		zap.Strings("roles", resolution.Roles),
		zap.Int("permissions", len(resolution.Permissions)),
		zap.String("dataScope", merged.String()),
	)

	r.cache.Set(cacheKey, resolution, r.cacheTTL)
	return resolution, nil
}

// Invalidate 失效用户的授权缓存（角色/权限变更后调用）
func (r *Resolver) Invalidate(userID int64) {
	r.cache.Delete(fmt.Sprintf("rbac:resolution:%d", userID))
}

// ScopeFilter 根据解析结果构造数据范围过滤器
func (r *Resolver) ScopeFilter(resolution *Resolution) *auth.ScopeFilter {
	return &auth.ScopeFilter{
		Scope:   auth.DataScope(resolution.DataScope),
		UserID:  resolution.UserID,
		DeptIDs: resolution.Depts,
	}
}
