// Package model 定义用户-角色-权限关系模型。
package model

import (
	"github.com/goiam/pkg/dal"
)

// User 用户模型
type User struct {
	dal.Model
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Password string `gorm:"size:255;not null" json:"-"`
	Nickname string `gorm:"size:50" json:"nickname"`
	Email    string `gorm:"size:100" json:"email"`
	Phone    string `gorm:"size:20" json:"phone"`
	Status   int8   `gorm:"default:1" json:"status"` // 1:正常 0:禁用
	DeptID   int64  `gorm:"index" json:"deptId"`
	Roles    []Role `gorm:"many2many:sys_user_role;" json:"roles,omitempty"`
}

// TableName 表名
func (User) TableName() string {
	return "sys_user"
}

// Role 角色模型
type Role struct {
	dal.Model
	Name        string       `gorm:"size:50;not null" json:"name"`
	Code        string       `gorm:"size:50;uniqueIndex;not null" json:"code"`
	DataScope   int8         `gorm:"default:5" json:"dataScope"` // auth.DataScope枚举值
	Status      int8         `gorm:"default:1" json:"status"`    // 1:正常 0:禁用
	Sort        int          `gorm:"default:0" json:"sort"`
	Description string       `gorm:"size:255" json:"description"`
	Permissions []Permission `gorm:"many2many:sys_role_permission;" json:"permissions,omitempty"`
	Menus       []Menu       `gorm:"many2many:sys_role_menu;" json:"menus,omitempty"`
	Depts       []Dept       `gorm:"many2many:sys_role_dept;" json:"depts,omitempty"`
}

// TableName 表名
func (Role) TableName() string {
	return "sys_role"
}

// Enabled 角色是否启用
func (r *Role) Enabled() bool {
	return r.Status == 1
}

// Permission 权限模型
type Permission struct {
	dal.Model
	Name     string `gorm:"size:50;not null" json:"name"`
	Code     string `gorm:"size:100;uniqueIndex;not null" json:"code"` // 如 system:user:list
	Resource string `gorm:"size:255" json:"resource"`                  // URL模式
	Action   string `gorm:"size:20" json:"action"`                    // HTTP方法或*
	Status   int8   `gorm:"default:1" json:"status"`
}

// TableName 表名
func (Permission) TableName() string {
	return "sys_permission"
}

// Menu 菜单模型
type Menu struct {
	dal.Model
	ParentID  int64  `gorm:"default:0;index" json:"parentId"`
	Name      string `gorm:"size:50;not null" json:"name"`
	Path      string `gorm:"size:255" json:"path"`
	Component string `gorm:"size:255" json:"component"`
	Icon      string `gorm:"size:100" json:"icon"`
	Sort      int    `gorm:"default:0" json:"sort"`
	Visible   bool   `gorm:"default:true" json:"visible"`
	Status    int8   `gorm:"default:1" json:"status"`
}

// TableName 表名
func (Menu) TableName() string {
	return "sys_menu"
}

// Dept 部门模型
type Dept struct {
	dal.Model
	ParentID int64  `gorm:"default:0;index" json:"parentId"`
	Name     string `gorm:"size:50;not null" json:"name"`
	Sort     int    `gorm:"default:0" json:"sort"`
	Status   int8   `gorm:"default:1" json:"status"`
}

// TableName 表名
func (Dept) TableName() string {
	return "sys_dept"
}
