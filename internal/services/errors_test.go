package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrors_MatchThroughWrapping(t *testing.T) {
	base := NewConflictError("stage", "请先完成隐蔽工程验收")
	wrapped := fmt.Errorf("update failed: %w", base)

	conflict, ok := IsConflictError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "stage", conflict.Resource)
	assert.Equal(t, "请先完成隐蔽工程验收", conflict.Message)

	_, ok = IsValidationError(wrapped)
	assert.False(t, ok)
}

func TestTypedErrors_Messages(t *testing.T) {
	assert.Equal(t, "start_date: 开工日期不能早于今天", NewValidationError("start_date", "开工日期不能早于今天").Error())
	assert.Equal(t, "只能有说明", NewValidationError("", "只能有说明").Error())
	assert.Equal(t, "施工排期 not found", NewNotFoundError("施工排期").Error())
	assert.Equal(t, "报告未解锁", NewForbiddenError("报告未解锁").Error())
	assert.Equal(t, "analysis unavailable: 分析服务繁忙", NewUnavailableError("analysis", "分析服务繁忙").Error())
}

func TestTypedErrors_Discrimination(t *testing.T) {
	var err error = NewNotFoundError("订单")

	_, notFound := IsNotFoundError(err)
	assert.True(t, notFound)
	_, conflict := IsConflictError(err)
	assert.False(t, conflict)
	_, forbidden := IsForbiddenError(err)
	assert.False(t, forbidden)
	_, unavailable := IsUnavailableError(err)
	assert.False(t, unavailable)
}
