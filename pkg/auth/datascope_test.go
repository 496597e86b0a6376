package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDataScopes(t *testing.T) {
	tests := []struct {
		name   string
		scopes []DataScope
		want   DataScope
	}{
		{"空列表取最严格", nil, DataScopeSelf},
		{"单一范围", []DataScope{DataScopeDept}, DataScopeDept},
		{"SELF与ALL取ALL", []DataScope{DataScopeSelf, DataScopeAll}, DataScopeAll},
		{"顺序无关", []DataScope{DataScopeAll, DataScopeSelf}, DataScopeAll},
		{"DEPT与DEPT_AND_CHILD取后者", []DataScope{DataScopeDeptAndChild, DataScopeDept}, DataScopeDept},
		{"非法值被忽略", []DataScope{DataScope(0), DataScope(99), DataScopeDept}, DataScopeDept},
		{"全部非法取最严格", []DataScope{DataScope(0), DataScope(99)}, DataScopeSelf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeDataScopes(tt.scopes))
		})
	}
}

func TestDataScopeWiderThan(t *testing.T) {
	assert.True(t, DataScopeAll.WiderThan(DataScopeSelf))
	assert.True(t, DataScopeCustom.WiderThan(DataScopeDept))
	assert.False(t, DataScopeSelf.WiderThan(DataScopeAll))
	assert.False(t, DataScopeDept.WiderThan(DataScopeDept))
}

func TestScopeFilterCondition(t *testing.T) {
	t.Run("ALL无过滤", func(t *testing.T) {
		f := &ScopeFilter{Scope: DataScopeAll, UserID: 1}
		cond, args := f.Condition("created_by", "dept_id")
		assert.Empty(t, cond)
		assert.Empty(t, args)
	})

	t.Run("SELF限制本人", func(t *testing.T) {
		f := &ScopeFilter{Scope: DataScopeSelf, UserID: 7}
		cond, args := f.Condition("created_by", "dept_id")
		assert.Equal(t, "created_by = ?", cond)
		assert.Equal(t, []interface{}{int64(7)}, args)
	})

	t.Run("部门范围限制部门集合", func(t *testing.T) {
		f := &ScopeFilter{Scope: DataScopeDeptAndChild, UserID: 7, DeptIDs: []int64{3, 4, 5}}
		cond, args := f.Condition("created_by", "dept_id")
		assert.Equal(t, "dept_id IN ?", cond)
		assert.Equal(t, []interface{}{[]int64{3, 4, 5}}, args)
	})

	t.Run("部门范围无部门时退化为本人", func(t *testing.T) {
		f := &ScopeFilter{Scope: DataScopeDept, UserID: 7}
		cond, args := f.Condition("created_by", "dept_id")
		assert.Equal(t, "created_by = ?", cond)
		assert.Equal(t, []interface{}{int64(7)}, args)
	})
}
