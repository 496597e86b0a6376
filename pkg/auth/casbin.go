package auth

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v3"
	casbinmodel "github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// RBAC模型：用户-角色分组 + 角色-资源-动作策略
const rbacModelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (p.act == "*" || regexMatch(r.act, p.act))
`

var (
	enforcerOnce sync.Once
	enforcer     *casbin.Enforcer
)

// InitCasbin 初始化Casbin
func InitCasbin(db *gorm.DB) error {
	var err error
	enforcerOnce.Do(func() {
		adapter, adapterErr := gormadapter.NewAdapterByDB(db)
		if adapterErr != nil {
			err = fmt.Errorf("failed to create casbin adapter: %w", adapterErr)
			return
		}

		m, modelErr := casbinmodel.NewModelFromString(rbacModelText)
		if modelErr != nil {
			err = fmt.Errorf("failed to build casbin model: %w", modelErr)
			return
		}

		enforcer, err = casbin.NewEnforcer(m, adapter)
		if err != nil {
			err = fmt.Errorf("failed to create casbin enforcer: %w", err)
			return
		}

		if err = enforcer.LoadPolicy(); err != nil {
			err = fmt.Errorf("failed to load casbin policy: %w", err)
			return
		}
	})
	return err
}

// GetEnforcer 获取Enforcer
func GetEnforcer() *casbin.Enforcer {
	if enforcer == nil {
		panic("casbin enforcer not initialized, call InitCasbin first")
	}
	return enforcer
}

// Permission 权限定义
type Permission struct {
	Resource string `json:"resource"` // 资源路径，如 /api/v1/users/*
	Action   string `json:"action"`   // 动作，如 GET, POST, *
}

// CasbinService Casbin权限服务
type CasbinService struct {
	enforcer *casbin.Enforcer
}

// NewCasbinService 创建Casbin权限服务
func NewCasbinService() *CasbinService {
	return &CasbinService{
		enforcer: GetEnforcer(),
	}
}

// SetUserRoles 设置用户角色
func (s *CasbinService) SetUserRoles(userID int64, roleCodes []string) error {
	user := fmt.Sprintf("user:%d", userID)

	if _, err := s.enforcer.DeleteRolesForUser(user); err != nil {
		return err
	}

	for _, code := range roleCodes {
		if _, err := s.enforcer.AddGroupingPolicy(user, "role:"+code); err != nil {
			return err
		}
	}
	return nil
}

// SyncRolePermissions 同步角色权限
func (s *CasbinService) SyncRolePermissions(roleCode string, permissions []Permission) error {
	role := "role:" + roleCode

	if _, err := s.enforcer.DeletePermissionsForUser(role); err != nil {
		return err
	}

	for _, perm := range permissions {
		if _, err := s.enforcer.AddPolicy(role, perm.Resource, perm.Action); err != nil {
			return err
		}
	}
	return nil
}

// CheckUserPermission 检查用户权限（含角色继承）
func (s *CasbinService) CheckUserPermission(userID int64, resource, action string) bool {
	ok, _ := s.enforcer.Enforce(fmt.Sprintf("user:%d", userID), resource, action)
	return ok
}

// CheckRolePermission 检查角色权限
func (s *CasbinService) CheckRolePermission(roleCode, resource, action string) bool {
	ok, _ := s.enforcer.Enforce("role:"+roleCode, resource, action)
	return ok
}
