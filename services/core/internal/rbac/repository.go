// Package rbac 实现角色权限解析：角色并集、数据范围合并与部门展开。
package rbac

import (
	"context"

	"github.com/goiam/pkg/dal"
	"github.com/goiam/services/core/internal/model"
	"gorm.io/gorm"
)

// Repository RBAC仓储接口
type Repository interface {
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindUserByID(ctx context.Context, id int64) (*model.User, error)
	FindUserRoles(ctx context.Context, userID int64) ([]model.Role, error)
	FindRolePermissions(ctx context.Context, roleID int64) ([]model.Permission, error)
	FindRoleMenus(ctx context.Context, roleID int64) ([]model.Menu, error)
	FindRoleDepts(ctx context.Context, roleID int64) ([]model.Dept, error)
	FindDeptDescendants(ctx context.Context, deptID int64) ([]int64, error)
	FindEnabledRoles(ctx context.Context) ([]model.Role, error)
}

// repository RBAC仓储实现
type repository struct {
	users *dal.BaseRepository[model.User]
	db    *gorm.DB
}

// NewRepository 创建RBAC仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		users: dal.NewBaseRepositoryWithDB[model.User](db),
		db:    db,
	}
}

// FindUserByUsername 根据用户名查找用户
func (r *repository) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.users.FindOne(ctx, map[string]interface{}{"username": username})
}

// FindUserByID 根据ID查找用户
func (r *repository) FindUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.users.FindByID(ctx, id)
}

// FindUserRoles 查找用户的全部角色（含禁用角色，由解析器过滤）
func (r *repository) FindUserRoles(ctx context.Context, userID int64) ([]model.Role, error) {
	var roles []model.Role
	err := r.db.WithContext(ctx).
		Joins("JOIN sys_user_role ON sys_user_role.role_id = sys_role.id").
		Where("sys_user_role.user_id = ?", userID).
		Order("sys_role.sort").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// FindRolePermissions 查找角色的启用权限
func (r *repository) FindRolePermissions(ctx context.Context, roleID int64) ([]model.Permission, error) {
	var permissions []model.Permission
	err := r.db.WithContext(ctx).
		Joins("JOIN sys_role_permission ON sys_role_permission.permission_id = sys_permission.id").
		Where("sys_role_permission.role_id = ? AND sys_permission.status = 1", roleID).
		Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

// FindRoleMenus 查找角色的启用菜单
func (r *repository) FindRoleMenus(ctx context.Context, roleID int64) ([]model.Menu, error) {
	var menus []model.Menu
	err := r.db.WithContext(ctx).
		Joins("JOIN sys_role_menu ON sys_role_menu.menu_id = sys_menu.id").
		Where("sys_role_menu.role_id = ? AND sys_menu.status = 1", roleID).
		Order("sys_menu.sort").
		Find(&menus).Error
	if err != nil {
		return nil, err
	}
	return menus, nil
}

// FindRoleDepts 查找角色的自定义数据范围部门
func (r *repository) FindRoleDepts(ctx context.Context, roleID int64) ([]model.Dept, error) {
	var depts []model.Dept
	err := r.db.WithContext(ctx).
		Joins("JOIN sys_role_dept ON sys_role_dept.dept_id = sys_dept.id").
		Where("sys_role_dept.role_id = ? AND sys_dept.status = 1", roleID).
		Find(&depts).Error
	if err != nil {
		return nil, err
	}
	return depts, nil
}

// FindDeptDescendants 查找部门及其所有后代部门ID（广度优先逐层查询）
func (r *repository) FindDeptDescendants(ctx context.Context, deptID int64) ([]int64, error) {
	result := []int64{deptID}
	frontier := []int64{deptID}

	for len(frontier) > 0 {
		var children []int64
		err := r.db.WithContext(ctx).
			Model(&model.Dept{}).
			Where("parent_id IN ? AND status = 1", frontier).
			Pluck("id", &children).Error
		if err != nil {
			return nil, err
		}

		result = append(result, children...)
		frontier = children
	}

	return result, nil
}

// FindEnabledRoles 查找所有启用角色
func (r *repository) FindEnabledRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := r.db.WithContext(ctx).
		Where("status = 1").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}
