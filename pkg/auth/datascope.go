package auth

// DataScope 数据权限范围
// 取值沿用权限模型约定：数值越小范围越大
type DataScope int8

// 数据权限范围常量
const (
	DataScopeAll          DataScope = 1 // 全部数据
	DataScopeCustom       DataScope = 2 // 自定义部门数据
	DataScopeDept         DataScope = 3 // 本部门数据
	DataScopeDeptAndChild DataScope = 4 // 本部门及以下数据
	DataScopeSelf         DataScope = 5 // 仅本人数据
)

// Valid 是否为合法取值
func (s DataScope) Valid() bool {
	return s >= DataScopeAll && s <= DataScopeSelf
}

// WiderThan 范围是否比另一个更大（限制更少）
func (s DataScope) WiderThan(other DataScope) bool {
	return s < other
}

// String 范围名称
func (s DataScope) String() string {
	switch s {
	case DataScopeAll:
		return "ALL"
	case DataScopeCustom:
		return "CUSTOM"
	case DataScopeDept:
		return "DEPT"
	case DataScopeDeptAndChild:
		return "DEPT_AND_CHILD"
	case DataScopeSelf:
		return "SELF"
	default:
		return "UNKNOWN"
	}
}

// MergeDataScopes 合并多角色的数据权限，取限制最少者
// 空列表返回最严格的 SELF
func MergeDataScopes(scopes []DataScope) DataScope {
	merged := DataScopeSelf
	for _, s := range scopes {
		if !s.Valid() {
			continue
		}
		if s.WiderThan(merged) {
			merged = s
		}
	}
	return merged
}

// ScopeFilter 数据权限过滤条件
// 由RBAC解析器计算，交给查询构建方使用
type ScopeFilter struct {
	Scope   DataScope `json:"scope"`
	UserID  int64     `json:"userId"`
	DeptIDs []int64   `json:"deptIds,omitempty"` // DEPT/DEPT_AND_CHILD/CUSTOM时生效
}

// Condition 生成SQL过滤条件
// 返回空条件表示不过滤（ALL）
func (f *ScopeFilter) Condition(userField, deptField string) (string, []interface{}) {
	if userField == "" {
		userField = "created_by"
	}
	if deptField == "" {
		deptField = "dept_id"
	}

	switch f.Scope {
	case DataScopeAll:
		return "", nil
	case DataScopeSelf:
		return userField + " = ?", []interface{}{f.UserID}
	case DataScopeCustom, DataScopeDept, DataScopeDeptAndChild:
		if len(f.DeptIDs) == 0 {
			// 无可见部门时退化为仅本人
			return userField + " = ?", []interface{}{f.UserID}
		}
		return deptField + " IN ?", []interface{}{f.DeptIDs}
	default:
		return userField + " = ?", []interface{}{f.UserID}
	}
}
