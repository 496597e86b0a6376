package rbac

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/dal"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/services/core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.Permission{},
		&model.Menu{},
		&model.Dept{},
	))
	return db
}

// seedGraph 构造测试数据：
// 部门树：研发部(1) → 后端组(2) → 平台组(3)；市场部(4)独立
// zhangsan：user角色(SELF) + ops角色(ALL)
// lisi：viewer角色(DEPT_AND_CHILD)，挂研发部
// wangwu：custom角色(CUSTOM)，指定市场部
func seedGraph(t *testing.T, db *gorm.DB) {
	t.Helper()

	depts := []model.Dept{
		{Model: dal.Model{ID: 1}, ParentID: 0, Name: "研发部", Status: 1},
		{Model: dal.Model{ID: 2}, ParentID: 1, Name: "后端组", Status: 1},
		{Model: dal.Model{ID: 3}, ParentID: 2, Name: "平台组", Status: 1},
		{Model: dal.Model{ID: 4}, ParentID: 0, Name: "市场部", Status: 1},
	}
	require.NoError(t, db.Create(&depts).Error)

	perms := []model.Permission{
		{Model: dal.Model{ID: 1}, Name: "用户列表", Code: "system:user:list", Resource: "/api/v1/users", Action: "GET", Status: 1},
		{Model: dal.Model{ID: 2}, Name: "用户删除", Code: "system:user:delete", Resource: "/api/v1/users/*", Action: "DELETE", Status: 1},
		{Model: dal.Model{ID: 3}, Name: "用户导出", Code: "system:user:export", Status: 0},
	}
	require.NoError(t, db.Create(&perms).Error)

	menus := []model.Menu{
		{Model: dal.Model{ID: 1}, Name: "系统管理", Status: 1},
		{Model: dal.Model{ID: 2}, ParentID: 1, Name: "用户管理", Status: 1},
	}
	require.NoError(t, db.Create(&menus).Error)

	roles := []model.Role{
		{Model: dal.Model{ID: 1}, Name: "普通用户", Code: "user", DataScope: int8(auth.DataScopeSelf), Status: 1},
		{Model: dal.Model{ID: 2}, Name: "运维", Code: "ops", DataScope: int8(auth.DataScopeAll), Status: 1},
		{Model: dal.Model{ID: 3}, Name: "查看者", Code: "viewer", DataScope: int8(auth.DataScopeDeptAndChild), Status: 1},
		{Model: dal.Model{ID: 4}, Name: "定制", Code: "custom", DataScope: int8(auth.DataScopeCustom), Status: 1},
	}
	require.NoError(t, db.Create(&roles).Error)

	users := []model.User{
		{Model: dal.Model{ID: 1}, Username: "zhangsan", Password: "x", DeptID: 2, Status: 1},
		{Model: dal.Model{ID: 2}, Username: "lisi", Password: "x", DeptID: 1, Status: 1},
		{Model: dal.Model{ID: 3}, Username: "wangwu", Password: "x", DeptID: 4, Status: 1},
	}
	require.NoError(t, db.Create(&users).Error)

	links := []string{
		"INSERT INTO sys_user_role (user_id, role_id) VALUES (1, 1), (1, 2), (2, 3), (3, 4)",
		"INSERT INTO sys_role_permission (role_id, permission_id) VALUES (1, 1), (2, 1), (2, 2), (2, 3)",
		"INSERT INTO sys_role_menu (role_id, menu_id) VALUES (1, 1), (2, 1), (2, 2)",
		"INSERT INTO sys_role_dept (role_id, dept_id) VALUES (4, 4)",
	}
	for _, sql := range links {
		require.NoError(t, db.Exec(sql).Error)
	}
}

func TestResolveUnionsEnabledRoles(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.UserID)
	assert.ElementsMatch(t, []string{"user", "ops"}, res.Roles)
	// 权限并集去重，停用权限不参与
	assert.ElementsMatch(t, []string{"system:user:list", "system:user:delete"}, res.Permissions)
	assert.ElementsMatch(t, []int64{1, 2}, res.Menus)
	// SELF与ALL合并取最宽松
	assert.Equal(t, int8(auth.DataScopeAll), res.DataScope)
	assert.Empty(t, res.Depts)
}

func TestResolveIgnoresDisabledRole(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	require.NoError(t, db.Model(&model.Role{}).Where("code = ?", "ops").Update("status", 0).Error)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"user"}, res.Roles)
	assert.Equal(t, []string{"system:user:list"}, res.Permissions)
	assert.Equal(t, int8(auth.DataScopeSelf), res.DataScope)
}

func TestResolveNoRoles(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	require.NoError(t, db.Exec("DELETE FROM sys_user_role WHERE user_id = 1").Error)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.Empty(t, res.Roles)
	assert.Empty(t, res.Permissions)
	// 无角色收敛到仅本人
	assert.Equal(t, int8(auth.DataScopeSelf), res.DataScope)
}

func TestResolveDeptAndChildExpands(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int8(auth.DataScopeDeptAndChild), res.DataScope)
	assert.ElementsMatch(t, []int64{1, 2, 3}, res.Depts)
}

func TestResolveCustomDepts(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, int8(auth.DataScopeCustom), res.DataScope)
	assert.Equal(t, []int64{4}, res.Depts)
}

func TestResolveUserNotFound(t *testing.T) {
	db := newTestDB(t)
	resolver := NewResolver(NewRepository(db))

	_, err := resolver.Resolve(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, 404, errors.GetCode(err))
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user", "ops"}, res.Roles)

	// 角色停用后缓存结果仍然生效
	require.NoError(t, db.Model(&model.Role{}).Where("code = ?", "ops").Update("status", 0).Error)
	cached, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user", "ops"}, cached.Roles)

	// 失效后重新解析
	resolver.Invalidate(1)
	fresh, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, fresh.Roles)
}

func TestScopeFilter(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	resolver := NewResolver(NewRepository(db))

	res, err := resolver.Resolve(context.Background(), 2)
	require.NoError(t, err)

	filter := resolver.ScopeFilter(res)
	assert.Equal(t, auth.DataScopeDeptAndChild, filter.Scope)
	assert.Equal(t, int64(2), filter.UserID)
	assert.ElementsMatch(t, []int64{1, 2, 3}, filter.DeptIDs)
}

func TestFindDeptDescendantsSkipsDisabled(t *testing.T) {
	db := newTestDB(t)
	seedGraph(t, db)
	require.NoError(t, db.Model(&model.Dept{}).Where("id = ?", 2).Update("status", 0).Error)
	repo := NewRepository(db)

	// 停用的中间部门阻断其子树
	depts, err := repo.FindDeptDescendants(context.Background(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1}, depts)
}
